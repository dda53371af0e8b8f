package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/metrics"
	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
)

var errMissingStore = errors.New("syncer: local store is required")

// CredentialStore persists the remote settings.
type CredentialStore interface {
	Load() (credentials.RemoteConfig, error)
	Save(credentials.RemoteConfig) error
}

type WorkspaceConfig struct {
	Store       *store.Store
	Credentials CredentialStore
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Workspace is the application context shared by the engine, the poller and the API.
// Collections are replaced as a whole under the lock; readers never see partial updates.
type Workspace struct {
	mu       sync.RWMutex
	document  records.Document
	intents   Intents
	watermark records.Watermark
	remote    credentials.RemoteConfig
	sessions map[string]time.Time

	store       *store.Store
	credentials CredentialStore
	metrics     *metrics.Recorder
	logger      *zap.Logger
	clock       func() time.Time
}

func NewWorkspace(cfg WorkspaceConfig) (*Workspace, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Workspace{
		document:    records.Document{}.Normalize(),
		sessions:    make(map[string]time.Time),
		store:       cfg.Store,
		credentials: cfg.Credentials,
		metrics:     cfg.Metrics,
		logger:      logger,
		clock:       clock,
	}, nil
}

// Load restores collections, pending changes and remote settings.
func (w *Workspace) Load(ctx context.Context) error {
	maintenance, err := store.GetAll[records.MaintenanceRecord](ctx, w.store, store.CollectionMaintenance)
	if err != nil {
		return err
	}
	components, err := store.GetAll[records.ComponentReplacementRecord](ctx, w.store, store.CollectionComponents)
	if err != nil {
		return err
	}
	var intents Intents
	if _, err := w.store.Load(ctx, store.CollectionPending, &intents); err != nil {
		return err
	}
	var watermark records.Watermark
	if _, err := w.store.Load(ctx, store.CollectionWatermark, &watermark); err != nil {
		return err
	}

	document := records.Document{MaintenanceRecords: maintenance, ComponentReplacements: components}.Normalize()
	w.mu.Lock()
	w.document = document
	w.intents = intents
	w.watermark = watermark.Raise(document)
	w.mu.Unlock()
	w.metrics.SetPendingChanges(intents.Len())

	if err := w.ReloadRemoteConfig(); err != nil {
		w.logger.Warn("remote settings unavailable", zap.Error(err))
	}

	w.logger.Info("workspace loaded",
		zap.Int("maintenance_records", len(maintenance)),
		zap.Int("component_replacements", len(components)),
		zap.Int("pending_changes", intents.Len()))
	return nil
}

// Document returns a copy of both collections.
func (w *Workspace) Document() records.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.document.Normalize()
}

// Intents returns the changes not yet published.
func (w *Workspace) Intents() Intents {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.intents.clone()
}

// Watermark returns the highest identifiers assigned so far.
func (w *Workspace) Watermark() records.Watermark {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watermark
}

func (w *Workspace) snapshot() (records.Document, Intents) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.document.Normalize(), w.intents.clone()
}

// commit persists both collections, the intents and the raised watermark in one transaction,
// then swaps them in. On failure neither the store nor memory changes.
func (w *Workspace) commit(ctx context.Context, document records.Document, intents Intents) error {
	document = document.Normalize()
	watermark := w.Watermark().Raise(document)
	err := w.store.SaveSnapshots(ctx, map[store.Collection]any{
		store.CollectionMaintenance: nonNil(document.MaintenanceRecords),
		store.CollectionComponents:  nonNil(document.ComponentReplacements),
		store.CollectionPending:     intents,
		store.CollectionWatermark:   watermark,
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.document = document
	w.intents = intents
	w.watermark = watermark
	w.mu.Unlock()
	w.metrics.SetPendingChanges(intents.Len())
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// adopt swaps in state from the remote. A failed local save is logged; memory still follows
// the remote so the next poll compares against what was fetched.
func (w *Workspace) adopt(ctx context.Context, document records.Document, intents Intents) {
	if err := w.commit(ctx, document, intents); err != nil {
		w.logger.Error("local store save failed", zap.String("operation", "syncer.adopt"), zap.Error(err))
		document = document.Normalize()
		w.mu.Lock()
		w.document = document
		w.intents = intents
		w.watermark = w.watermark.Raise(document)
		w.mu.Unlock()
	}
}

// RemoteConfig returns the current remote settings.
func (w *Workspace) RemoteConfig() credentials.RemoteConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.remote
}

// SetRemoteConfig stores new remote settings and uses them for the next remote call.
func (w *Workspace) SetRemoteConfig(config credentials.RemoteConfig) error {
	if w.credentials != nil {
		if err := w.credentials.Save(config); err != nil {
			return err
		}
	}
	w.mu.Lock()
	w.remote = config
	w.mu.Unlock()
	return nil
}

// ReloadRemoteConfig rereads the credential store.
func (w *Workspace) ReloadRemoteConfig() error {
	if w.credentials == nil {
		return nil
	}
	config, err := w.credentials.Load()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.remote = config
	w.mu.Unlock()
	return nil
}

// StartSession marks an operator session active until expiresAt.
func (w *Workspace) StartSession(id string, expiresAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[id] = expiresAt
}

// EndSession forgets the session.
func (w *Workspace) EndSession(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, id)
}

// SessionActive reports whether id names a started, unexpired session.
func (w *Workspace) SessionActive(id string) bool {
	now := w.clock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	expiresAt, ok := w.sessions[id]
	return ok && expiresAt.After(now)
}

// HasActiveSession reports whether any unexpired session exists. Expired sessions are pruned.
func (w *Workspace) HasActiveSession() bool {
	now := w.clock()
	w.mu.Lock()
	defer w.mu.Unlock()
	active := false
	for id, expiresAt := range w.sessions {
		if !expiresAt.After(now) {
			delete(w.sessions, id)
			continue
		}
		active = true
	}
	return active
}
