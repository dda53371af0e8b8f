package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultPollInterval = 60 * time.Second

type PollerConfig struct {
	Engine   *Engine
	Interval time.Duration
	Logger   *zap.Logger
}

// Poller drives PollOnce from a ticker and from on-demand triggers. Ticks are skipped while
// no operator session is active; triggers always poll.
type Poller struct {
	engine   *Engine
	interval time.Duration
	triggers chan struct{}
	logger   *zap.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		engine:   cfg.Engine,
		interval: interval,
		triggers: make(chan struct{}, 1),
		logger:   logger,
	}
}

// Trigger requests a manual poll without waiting for it. Requests made while one is
// already queued collapse into it.
func (p *Poller) Trigger() {
	select {
	case p.triggers <- struct{}{}:
	default:
	}
}

// Serve satisfies suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !p.engine.Workspace().HasActiveSession() {
				continue
			}
			p.engine.PollOnce(ctx, false)
		case <-p.triggers:
			p.engine.PollOnce(ctx, true)
		}
	}
}

func (p *Poller) String() string {
	return "sync-poller"
}
