// Package app provides top-level application lifecycle management for the
// escrow daemon. It wires together stores, caches, chain access, the engine,
// and the HTTP surface, and supervises the long-running goroutines.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/chainbazaar/escrowd/internal/blob/s3"
	"github.com/chainbazaar/escrowd/internal/config"
	"github.com/chainbazaar/escrowd/internal/engine"
	"github.com/chainbazaar/escrowd/internal/server"
	"github.com/chainbazaar/escrowd/internal/server/handler"
	"github.com/chainbazaar/escrowd/internal/server/ws"
	"github.com/chainbazaar/escrowd/internal/service"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server, websocket hub, and
// audit archiver, and blocks until the context is cancelled or a component
// fails.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "dependencies wired",
		slog.String("operator", deps.Operator.Hex()),
		slog.Bool("postgres", a.cfg.Postgres.Enabled()),
		slog.Bool("redis", a.cfg.Redis.Enabled()),
		slog.Bool("s3", a.cfg.S3.Enabled()),
	)

	// Engine.
	guard := engine.NewOwnershipGuard(deps.Registry, deps.Operator)
	swap := engine.NewPaymentSwap(deps.Registry, deps.Payments, a.logger)
	eng := engine.New(deps.ListingStore, guard, swap, deps.LockManager, deps.AuditStore, a.logger)

	// Websocket hub, fed through the bus when Redis is present, directly
	// otherwise.
	hub := ws.NewHub(deps.EventBus, a.logger)
	if deps.EventBus != nil {
		eng.AddSink(newBusSink(deps.EventBus, a.logger))
	} else {
		eng.AddSink(newHubSink(hub))
	}

	// Service and HTTP surface.
	svc := service.NewListingService(eng, deps.ListingStore, deps.AuditStore, deps.ListingCache, a.logger).
		WithAlerter(deps.Alerter)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(),
			Listings: handler.NewListingHandler(svc, a.logger),
			Audit:    handler.NewAuditHandler(svc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if deps.Writer != nil && a.cfg.Archive.IntervalHours > 0 {
		archiver := s3blob.NewArchiver(
			deps.Writer,
			deps.AuditStore,
			time.Duration(a.cfg.Archive.IntervalHours)*time.Hour,
			time.Duration(a.cfg.Archive.RetainDays)*24*time.Hour,
			a.cfg.Archive.BatchSize,
			a.logger,
		)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
