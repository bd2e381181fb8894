// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/waypost/internal/aggregate"
	"github.com/tomtom215/waypost/internal/api"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/eventbus"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/livesync"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/store"
	"github.com/tomtom215/waypost/internal/supervisor"
	"github.com/tomtom215/waypost/internal/supervisor/services"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitRuntime       = 1
	exitConfiguration = 2
)

func main() {
	if err := run(); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			logging.Error().Str("setting", cfgErr.Setting).Err(err).Msg("Invalid configuration, refusing to start")
			os.Exit(exitConfiguration)
		}
		logging.Error().Err(err).Msg("Waypost stopped with error")
		os.Exit(exitRuntime)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	logging.Info().
		Str("version", version).
		Str("store_backend", cfg.Store.Backend).
		Str("events_transport", cfg.Events.Transport).
		Int("port", cfg.Server.Port).
		Msg("Starting Waypost")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return app.Serve(ctx)
}

// app is the fully wired service.
type app struct {
	store   store.Store
	bus     *eventbus.Bus
	broker  *livesync.Broker
	handler *api.Handler
	server  *http.Server
	tree    *supervisor.SupervisorTree
}

// newApp opens the store and event bus and assembles the supervisor tree.
// Configuration problems surface here as *config.ConfigurationError before
// anything starts listening.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	logging.Info().Str("backend", cfg.Store.Backend).Msg("Visit store opened")

	bus, err := eventbus.Open(ctx, cfg.Events)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("open event bus: %w", err)
	}
	logging.Info().Str("transport", bus.Transport()).Msg("Event bus opened")

	recorder := ingest.NewRecorder(st, bus)
	engine := aggregate.NewEngine(st, aggregate.Options{TopN: cfg.Aggregate.TopN}, nil)
	broker := livesync.NewBroker(cfg.Events.BufferSize)
	hub := ws.NewHub()

	handler := api.NewHandler(cfg, api.Deps{
		Store:    st,
		Recorder: recorder,
		Engine:   engine,
		Broker:   broker,
		Hub:      hub,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg.Security))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		// WebSocket connections outlive WriteTimeout; the live client sets
		// its own write deadlines.
		IdleTimeout: 60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		handler.Close()
		_ = bus.Close()
		closeStore(st)
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewStoreHealthService(st, cfg.Store.Backend, 0, 0))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(livesync.NewBridge(bus, broker))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	return &app{
		store:   st,
		bus:     bus,
		broker:  broker,
		handler: handler,
		server:  server,
		tree:    tree,
	}, nil
}

// Serve runs the supervisor tree until ctx is canceled.
func (a *app) Serve(ctx context.Context) error {
	logging.Info().Str("addr", a.server.Addr).Msg("Starting supervisor tree")
	errCh := a.tree.ServeBackground(ctx)

	var serveErr error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			serveErr = err
		}
	}

	if unstopped, _ := a.tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	if serveErr == nil {
		logging.Info().Msg("Waypost stopped gracefully")
	}
	return serveErr
}

// Close releases everything newApp opened, bus before store so no publish
// races a closed store.
func (a *app) Close() {
	a.broker.Close()
	a.handler.Close()
	if err := a.bus.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing event bus")
	}
	closeStore(a.store)
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing visit store")
	}
}
