package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRecomputeMaintenanceStatus = "2026-10-01_recompute_maintenance_status"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRecomputeMaintenanceStatus, apply: recomputeMaintenanceStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// recomputeMaintenanceStatus rewrites snapshots saved by clients that stored Status verbatim.
// Undecodable snapshots are left for the store to discard on first read.
func recomputeMaintenanceStatus(db *gorm.DB) error {
	var snapshot store.Snapshot
	err := db.Where("name = ?", string(store.CollectionMaintenance)).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var collection []records.MaintenanceRecord
	if err := json.Unmarshal([]byte(snapshot.PayloadJSON), &collection); err != nil {
		return nil
	}
	for index := range collection {
		collection[index] = collection[index].Normalize()
	}
	payload, err := json.Marshal(collection)
	if err != nil {
		return err
	}
	return db.Model(&store.Snapshot{}).
		Where("name = ?", snapshot.Name).
		Update("payload_json", string(payload)).Error
}
