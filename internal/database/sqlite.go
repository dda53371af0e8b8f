package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
	"github.com/MarcoPoloResearchLab/frostlog/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// OpenSQLite opens the local database holding record snapshots and operators, then migrates it.
// In-memory DSNs ("file:...") are passed through untouched.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := path
	if !isURIPath(path) {
		if directory := filepath.Dir(path); directory != "." {
			if err := os.MkdirAll(directory, 0o700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = path + "?" + sqlitePragmas
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Snapshot writes and operator upserts share one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&store.Snapshot{}, &users.Operator{}, &migrationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func isURIPath(path string) bool {
	return len(path) >= 5 && path[:5] == "file:"
}
