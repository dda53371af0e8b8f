// Package syncer keeps the local collections in step with the shared document on GitHub.
package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MarcoPoloResearchLab/frostlog/internal/codec"
	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/fingerprint"
	"github.com/MarcoPoloResearchLab/frostlog/internal/metrics"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote"
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
)

var (
	errMissingWorkspace = errors.New("syncer: workspace is required")
	errMissingRemote    = errors.New("syncer: remote client is required")
)

// RemoteStore reads and writes the shared document.
type RemoteStore interface {
	GetDocument(ctx context.Context, target credentials.RemoteConfig) (remote.Document, error)
	PutDocument(ctx context.Context, target credentials.RemoteConfig, content, message, sha string) (string, error)
}

type Config struct {
	Workspace *Workspace
	Remote    RemoteStore
	Tracker   *fingerprint.Tracker
	Status    *status.Surface
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Engine runs polls and publishes against one workspace.
//
// opMu serializes everything that writes the workspace from a remote result: the apply step of
// a poll and the whole of a mutation plus its publish. Poll fetches run outside it, so a poll
// that raced a publish is discarded by the tracker's ticket check.
type Engine struct {
	workspace *Workspace
	remote    RemoteStore
	tracker   *fingerprint.Tracker
	surface   *status.Surface
	metrics   *metrics.Recorder
	logger    *zap.Logger

	polls singleflight.Group
	opMu  sync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Workspace == nil {
		return nil, errMissingWorkspace
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = &fingerprint.Tracker{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		workspace: cfg.Workspace,
		remote:    cfg.Remote,
		tracker:   tracker,
		surface:   cfg.Status,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Workspace returns the application context the engine writes to.
func (e *Engine) Workspace() *Workspace {
	return e.workspace
}

// Tracker exposes the fingerprint tracker.
func (e *Engine) Tracker() *fingerprint.Tracker {
	return e.tracker
}

// PollOnce fetches the shared document and adopts it when its fingerprint changed.
// Concurrent calls share one fetch; each manual caller still gets its own banner.
func (e *Engine) PollOnce(ctx context.Context, manual bool) Outcome {
	if manual && e.surface != nil {
		e.surface.Begin("Checking GitHub for changes.")
	}
	result, _, _ := e.polls.Do("poll", func() (any, error) {
		return e.poll(ctx, manual), nil
	})
	outcome := result.(Outcome)
	if manual || outcome.Kind != KindUnchanged {
		outcome.report(e.surface)
	}
	return outcome
}

// poll runs one fetch for every caller sharing it. manual is the flag of the caller that
// started it and only labels logs and metrics.
func (e *Engine) poll(ctx context.Context, manual bool) Outcome {
	logger := e.logger.With(zap.String("run_id", newRunID()), zap.Bool("manual", manual))
	outcome := e.fetchAndApply(ctx, logger)
	e.metrics.ObservePoll(string(outcome.Kind), manual)

	if !outcome.Succeeded() {
		logger.Warn("poll failed", zap.String("outcome", string(outcome.Kind)), zap.Error(outcome.Err))
	} else {
		logger.Debug("poll finished", zap.String("outcome", string(outcome.Kind)))
	}
	return outcome
}

func (e *Engine) fetchAndApply(ctx context.Context, logger *zap.Logger) Outcome {
	target := e.workspace.RemoteConfig()
	if !target.Complete() {
		return newOutcome(KindConfigMissing, nil)
	}

	ticket := e.tracker.Issue()
	fetched, err := e.remote.GetDocument(ctx, target)
	if err != nil {
		return classifyRead(err, KindTransient)
	}

	if current, known := e.tracker.Current(); known && current == fetched.SHA {
		return newOutcome(KindUnchanged, nil)
	}

	decoded, err := codec.Decode(fetched.Content)
	if err != nil {
		return newOutcome(KindDecodeError, err)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	if !e.tracker.Observe(ticket, fetched.SHA) {
		logger.Debug("discarding poll result older than the tracked fingerprint", zap.String("sha", fetched.SHA))
		return newOutcome(KindUnchanged, nil)
	}

	local, intents := e.workspace.snapshot()
	merged, renames := reconcileDocument(decoded, local, intents, e.workspace.Watermark(), adoptRemote)
	if !renames.Empty() {
		logger.Info("renumbered local records that collided with remote records",
			zap.Any("maintenance", renames.Maintenance),
			zap.Any("components", renames.Components))
	}
	e.workspace.adopt(ctx, merged, intents.renamed(renames))

	outcome := newOutcome(KindUpdated, nil)
	outcome.SHA = fetched.SHA
	return outcome
}

// classifyRead maps a failed read. fallback is used for failures that are not auth or 404.
func classifyRead(err error, fallback Kind) Outcome {
	switch {
	case errors.Is(err, remote.ErrIncompleteConfig):
		return newOutcome(KindConfigMissing, err)
	case remote.IsUnauthorized(err):
		return newOutcome(KindUnauthorized, err)
	case remote.IsNotFound(err):
		return newOutcome(KindNotFound, err)
	default:
		return newOutcome(fallback, err)
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
