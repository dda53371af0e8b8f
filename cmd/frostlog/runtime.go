package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/frostlog/internal/config"
	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/database"
	"github.com/MarcoPoloResearchLab/frostlog/internal/logging"
	"github.com/MarcoPoloResearchLab/frostlog/internal/metrics"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote"
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
)

// runtime holds the components every command shares.
type runtime struct {
	config      config.AppConfig
	logger      *zap.Logger
	db          *gorm.DB
	registry    *prometheus.Registry
	metrics     *metrics.Recorder
	credentials *credentials.FileStore
	workspace   *syncer.Workspace
	surface     *status.Surface
	engine      *syncer.Engine
	closers     []io.Closer
}

// workspaceAccess says whether a command writes the record collections. Writers hold the
// workspace lock for their whole run.
type workspaceAccess int

const (
	sharedAccess workspaceAccess = iota
	exclusiveAccess
)

func newRuntime(ctx context.Context, access workspaceAccess) (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLoggerWithSink(appConfig.LogLevel, logging.FileSink{
		Path:       appConfig.LogFile,
		MaxSizeMB:  appConfig.LogMaxSizeMB,
		MaxBackups: appConfig.LogMaxBackups,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{config: appConfig, logger: logger}
	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return fail(err)
	}
	rt.db = db
	sqlDB, err := db.DB()
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, sqlDB)

	if access == exclusiveAccess {
		lock, err := lockWorkspace(appConfig.DatabasePath)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, lock)
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.NewRecorder(rt.registry)

	localStore, err := store.New(store.Config{Database: db, Logger: logger})
	if err != nil {
		return fail(err)
	}
	rt.credentials, err = credentials.NewFileStore(appConfig.CredentialsPath, appConfig.CredentialsPassphrase)
	if err != nil {
		return fail(err)
	}
	rt.workspace, err = syncer.NewWorkspace(syncer.WorkspaceConfig{
		Store:       localStore,
		Credentials: rt.credentials,
		Metrics:     rt.metrics,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	if err := rt.workspace.Load(ctx); err != nil {
		return fail(fmt.Errorf("load workspace: %w", err))
	}

	client := remote.NewClient(remote.Config{
		BaseURL:           appConfig.RemoteAPIURL,
		DocumentPath:      appConfig.RemoteDocumentPath,
		Branch:            appConfig.RemoteBranch,
		Timeout:           appConfig.RemoteTimeout,
		RequestsPerMinute: appConfig.RemoteRequestsPerMin,
		BreakerFailures:   uint32(appConfig.RemoteBreakerFailures),
		BreakerCooldown:   appConfig.RemoteBreakerCooldown,
		Metrics:           rt.metrics,
		Logger:            logger,
	})
	rt.surface = status.NewSurface(status.Config{DisplayDuration: appConfig.StatusDisplayed})
	rt.engine, err = syncer.NewEngine(syncer.Config{
		Workspace: rt.workspace,
		Remote:    client,
		Status:    rt.surface,
		Metrics:   rt.metrics,
		Logger:    logger,
	})
	if err != nil {
		return fail(err)
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() {
	for index := len(r.closers) - 1; index >= 0; index-- {
		_ = r.closers[index].Close()
	}
	r.closers = nil
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

// withTimeout bounds one-shot CLI operations. A publish makes two remote calls.
func withTimeout(ctx context.Context, remoteTimeout time.Duration) (context.Context, context.CancelFunc) {
	if remoteTimeout <= 0 {
		remoteTimeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, 2*remoteTimeout)
}
