package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/auth"
	"github.com/MarcoPoloResearchLab/frostlog/internal/config"
	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/server"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
	"github.com/MarcoPoloResearchLab/frostlog/internal/users"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API and the background sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	defaults := config.NewViper()
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.Flags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.Flags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session lifetime in minutes")
	cmd.Flags().Int("poll-interval-seconds", defaults.GetInt("sync.poll_interval_seconds"), "Seconds between background polls")
	cmd.Flags().StringSlice("allowed-origins", nil, "Origins allowed by CORS (default any)")
	for key, flag := range map[string]string{
		"http.address":               "http-address",
		"auth.signing_secret":        "signing-secret",
		"auth.token_ttl_minutes":     "token-ttl-minutes",
		"sync.poll_interval_seconds": "poll-interval-seconds",
		"http.allowed_origins":       "allowed-origins",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runServer(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(signalCtx, exclusiveAccess)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.config.RequireServer(); err != nil {
		return err
	}
	logger := rt.logger

	operators, err := users.NewService(users.ServiceConfig{Database: rt.db})
	if err != nil {
		return err
	}
	if count, err := operators.Count(signalCtx); err == nil && count == 0 {
		logger.Warn("no operators yet; add one with `frostlog operators add`")
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(rt.config.SigningSecret),
		TokenTTL:      rt.config.TokenTTL,
	})
	if err != nil {
		return err
	}

	poller := syncer.NewPoller(syncer.PollerConfig{
		Engine:   rt.engine,
		Interval: rt.config.PollInterval,
		Logger:   logger,
	})
	watcher := credentials.NewWatcher(rt.credentials.Path(), func() {
		if err := rt.workspace.ReloadRemoteConfig(); err != nil {
			logger.Warn("remote settings reload failed", zap.Error(err))
			return
		}
		logger.Info("remote settings changed; polling")
		poller.Trigger()
	}, logger)

	realtime := server.NewRealtimeDispatcher()
	detach := realtime.Attach(rt.surface)
	defer detach()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:         rt.engine,
		Operators:      operators,
		TokenManager:   tokenIssuer,
		Status:         rt.surface,
		Realtime:       realtime,
		Poller:         poller,
		Gatherer:       rt.registry,
		AllowedOrigins: rt.config.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              rt.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	supervisor := suture.New("frostlog", suture.Spec{
		EventHook: supervisorEventHook(logger),
		Timeout:   15 * time.Second,
	})
	supervisor.Add(server.NewHTTPService(httpServer, 10*time.Second, logger))
	supervisor.Add(poller)
	supervisor.Add(watcher)

	printBanner(rt.config.HTTPAddress, rt.workspace.RemoteConfig())
	poller.Trigger()

	err = supervisor.Serve(signalCtx)
	if signalCtx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func supervisorEventHook(logger *zap.Logger) suture.EventHook {
	return func(event suture.Event) {
		logger.Warn("supervisor event",
			zap.String("event", event.String()),
			zap.Any("details", event.Map()))
	}
}
