package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/frostlog/internal/codec"
	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote/remotetest"
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
)

const testToken = "ghp_sync"

type memoryCredentials struct {
	mu     sync.Mutex
	config credentials.RemoteConfig
}

func (m *memoryCredentials) Load() (credentials.RemoteConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, nil
}

func (m *memoryCredentials) Save(config credentials.RemoteConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	return nil
}

// hookedRemote runs afterGet once, right after the next successful read returns.
type hookedRemote struct {
	RemoteStore

	mu       sync.Mutex
	afterGet func()
}

func (h *hookedRemote) GetDocument(ctx context.Context, target credentials.RemoteConfig) (remote.Document, error) {
	document, err := h.RemoteStore.GetDocument(ctx, target)
	h.mu.Lock()
	hook := h.afterGet
	h.afterGet = nil
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return document, err
}

func (h *hookedRemote) setAfterGet(hook func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterGet = hook
}

type testSession struct {
	engine    *Engine
	workspace *Workspace
	store     *store.Store
	surface   *status.Surface
	remote    *hookedRemote
}

func openTestStore(t *testing.T, name string) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.Snapshot{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	localStore, err := store.New(store.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return localStore
}

func newTestSession(t *testing.T, server *remotetest.Server, name string, configured bool) *testSession {
	t.Helper()
	localStore := openTestStore(t, name)
	creds := &memoryCredentials{}
	if configured {
		creds.config = credentials.RemoteConfig{Token: testToken, Owner: "acme", Repo: "dashboard"}
	}
	workspace, err := NewWorkspace(WorkspaceConfig{Store: localStore, Credentials: creds})
	if err != nil {
		t.Fatalf("failed to build workspace: %v", err)
	}
	if err := workspace.Load(context.Background()); err != nil {
		t.Fatalf("failed to load workspace: %v", err)
	}
	client := remote.NewClient(remote.Config{BaseURL: server.URL, RequestsPerMinute: 60000})
	hooked := &hookedRemote{RemoteStore: client}
	surface := status.NewSurface(status.Config{DisplayDuration: time.Hour})
	engine, err := NewEngine(Config{Workspace: workspace, Remote: hooked, Status: surface})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return &testSession{engine: engine, workspace: workspace, store: localStore, surface: surface, remote: hooked}
}

func seedRemote(t *testing.T, server *remotetest.Server, document records.Document) string {
	t.Helper()
	content, err := codec.Encode(document)
	if err != nil {
		t.Fatalf("failed to encode document: %v", err)
	}
	return server.Seed(content)
}

func remoteDocument(t *testing.T, server *remotetest.Server) records.Document {
	t.Helper()
	content, _, exists := server.Content()
	if !exists {
		t.Fatalf("expected remote document to exist")
	}
	document, err := codec.Decode(content)
	if err != nil {
		t.Fatalf("failed to decode remote document: %v", err)
	}
	return document
}

func day(t *testing.T, raw string) records.Date {
	t.Helper()
	date, err := records.ParseDate(raw)
	if err != nil {
		t.Fatalf("invalid date %q: %v", raw, err)
	}
	return date
}

func expectKind(t *testing.T, outcome Outcome, want Kind) {
	t.Helper()
	if outcome.Kind != want {
		t.Fatalf("expected outcome %s, got %s (%v)", want, outcome.Kind, outcome.Err)
	}
}

func errorsIsInvalid(err error) bool {
	return errors.Is(err, records.ErrInvalidRecord)
}
