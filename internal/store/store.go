// Package store keeps whole-collection snapshots in SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Collection names a snapshot slot.
type Collection string

const (
	CollectionMaintenance Collection = "maintenance_records"
	CollectionComponents  Collection = "component_replacements"
	CollectionPending     Collection = "pending_changes"
	CollectionWatermark   Collection = "id_watermark"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errEmptyCollection = errors.New("collection name is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew = "store.new"
	opLoad     = "store.load"
	opSave     = "store.save"
	opSaveMany = "store.save_snapshots"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Snapshot is one stored collection.
type Snapshot struct {
	Name             string `gorm:"column:name;primaryKey;size:64;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName pins the snapshot table name.
func (Snapshot) TableName() string {
	return "collection_snapshots"
}

type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store reads and overwrites whole collections.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Load decodes the snapshot named collection into target and reports whether one existed.
// A snapshot that no longer decodes is deleted and reported as absent.
func (s *Store) Load(ctx context.Context, collection Collection, target any) (bool, error) {
	if collection == "" {
		return false, newServiceError(opLoad, "missing_collection", errEmptyCollection)
	}
	var snapshot Snapshot
	err := s.db.WithContext(ctx).Where("name = ?", string(collection)).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		s.logError(opLoad, "select_failed", err, zap.String("collection", string(collection)))
		return false, newServiceError(opLoad, "select_failed", err)
	}
	if err := json.Unmarshal([]byte(snapshot.PayloadJSON), target); err != nil {
		s.logger.Warn("discarding corrupted snapshot",
			zap.String("collection", string(collection)),
			zap.Error(err))
		if deleteErr := s.db.WithContext(ctx).Where("name = ?", string(collection)).Delete(&Snapshot{}).Error; deleteErr != nil {
			s.logError(opLoad, "discard_failed", deleteErr, zap.String("collection", string(collection)))
			return false, newServiceError(opLoad, "discard_failed", deleteErr)
		}
		return false, nil
	}
	return true, nil
}

// Save overwrites the snapshot named collection with value.
func (s *Store) Save(ctx context.Context, collection Collection, value any) error {
	return s.SaveSnapshots(ctx, map[Collection]any{collection: value})
}

// SaveSnapshots overwrites every named snapshot in one transaction: either all of them change
// or none does.
func (s *Store) SaveSnapshots(ctx context.Context, values map[Collection]any) error {
	operation := opSaveMany
	if len(values) == 1 {
		operation = opSave
	}
	snapshots := make([]Snapshot, 0, len(values))
	updatedAt := s.clock().UTC().Unix()
	for _, collection := range sortedCollections(values) {
		if collection == "" {
			return newServiceError(operation, "missing_collection", errEmptyCollection)
		}
		payload, err := json.Marshal(values[collection])
		if err != nil {
			s.logError(operation, "encode_failed", err, zap.String("collection", string(collection)))
			return newServiceError(operation, "encode_failed", err)
		}
		snapshots = append(snapshots, Snapshot{
			Name:             string(collection),
			PayloadJSON:      string(payload),
			UpdatedAtSeconds: updatedAt,
		})
	}
	if len(snapshots) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index := range snapshots {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"payload_json", "updated_at_s"}),
			}).Create(&snapshots[index]).Error
			if err != nil {
				return fmt.Errorf("%s: %w", snapshots[index].Name, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logError(operation, "upsert_failed", err, zap.Int("snapshots", len(snapshots)))
		return newServiceError(operation, "upsert_failed", err)
	}
	return nil
}

func sortedCollections(values map[Collection]any) []Collection {
	collections := make([]Collection, 0, len(values))
	for collection := range values {
		collections = append(collections, collection)
	}
	slices.Sort(collections)
	return collections
}

// GetAll returns every record stored under collection; missing or corrupted snapshots read as empty.
func GetAll[T any](ctx context.Context, s *Store, collection Collection) ([]T, error) {
	var items []T
	if _, err := s.Load(ctx, collection, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SaveAll replaces the whole collection.
func SaveAll[T any](ctx context.Context, s *Store, collection Collection, items []T) error {
	if items == nil {
		items = []T{}
	}
	return s.Save(ctx, collection, items)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil || err == nil {
		return
	}
	allFields := make([]zap.Field, 0, len(fields)+3)
	allFields = append(allFields,
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	)
	allFields = append(allFields, fields...)
	s.logger.Error("store operation failed", allFields...)
}
