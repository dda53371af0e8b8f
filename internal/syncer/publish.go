package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/codec"
	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote"
)

const defaultCommitMessage = "Sync dashboard data"

// Publish merges local state onto the current remote document and writes it back with the
// remote sha as precondition. Local records the remote lacks are kept unless a pending deletion
// names them. Only one publish runs at a time.
func (e *Engine) Publish(ctx context.Context) Outcome {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	outcome, _ := e.publishLocked(ctx, defaultCommitMessage)
	return outcome
}

func (e *Engine) publishLocked(ctx context.Context, message string) (Outcome, Renames) {
	logger := e.logger.With(zap.String("run_id", newRunID()), zap.String("commit_message", message))
	if e.surface != nil {
		e.surface.Begin("Saving changes to GitHub.")
	}
	outcome, renames := e.publish(ctx, message, logger)
	e.metrics.ObservePublish(string(outcome.Kind))

	if outcome.Succeeded() {
		logger.Info("publish finished", zap.String("outcome", string(outcome.Kind)), zap.String("sha", outcome.SHA))
	} else {
		logger.Warn("publish failed", zap.String("outcome", string(outcome.Kind)), zap.Error(outcome.Err))
	}
	outcome.report(e.surface)
	return outcome, renames
}

func (e *Engine) publish(ctx context.Context, message string, logger *zap.Logger) (Outcome, Renames) {
	target := e.workspace.RemoteConfig()
	if !target.Complete() {
		return newOutcome(KindConfigIncomplete, nil), Renames{}
	}

	readTicket := e.tracker.Issue()
	base := records.Document{}.Normalize()
	sha := ""
	fetched, err := e.remote.GetDocument(ctx, target)
	switch {
	case err == nil:
		decoded, decodeErr := codec.Decode(fetched.Content)
		if decodeErr != nil {
			return newOutcome(KindDecodeError, decodeErr), Renames{}
		}
		base = decoded
		sha = fetched.SHA
		e.tracker.Observe(readTicket, sha)
	case remote.IsNotFound(err):
		logger.Info("shared document missing; creating it")
	default:
		return classifyRead(err, KindReadFailed), Renames{}
	}

	local, intents := e.workspace.snapshot()
	merged, renames := reconcileDocument(base, local, intents, e.workspace.Watermark(), keepLocal)
	if sha != "" && sameDocument(merged, base) {
		e.workspace.adopt(ctx, base, Intents{})
		outcome := newOutcome(KindUnchanged, nil)
		outcome.SHA = sha
		return outcome, Renames{}
	}

	content, err := codec.Encode(merged)
	if err != nil {
		return newOutcome(KindTransient, err), Renames{}
	}

	writeTicket := e.tracker.Issue()
	newSHA, err := e.remote.PutDocument(ctx, target, content, message, sha)
	if err != nil {
		return classifyWrite(err), Renames{}
	}
	e.tracker.Observe(writeTicket, newSHA)
	e.workspace.adopt(ctx, merged, Intents{})

	outcome := newOutcome(KindPublished, nil)
	outcome.SHA = newSHA
	return outcome, renames
}

func classifyWrite(err error) Outcome {
	switch {
	case remote.IsConflict(err):
		return newOutcome(KindConflict, err)
	case remote.IsUnauthorized(err):
		return newOutcome(KindUnauthorized, err)
	case remote.IsNotFound(err):
		return newOutcome(KindStaleTarget, err)
	default:
		return newOutcome(KindTransient, err)
	}
}
