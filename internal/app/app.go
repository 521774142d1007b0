// Package app provides the top-level lifecycle of the kiosk daemon. It wires
// the stores, caches, blob storage, auction API and notifications together
// and runs the HTTP API with its background workers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/config"
	"github.com/alanyoungcy/auctionkiosk/internal/fulfillment"
	"github.com/alanyoungcy/auctionkiosk/internal/identity"
	"github.com/alanyoungcy/auctionkiosk/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
	deps    *Dependencies
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, serves the kiosk API and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting kiosk",
		slog.String("kiosk_id", a.cfg.Kiosk.ID),
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	if err := a.wire(ctx); err != nil {
		return err
	}
	return a.Serve(ctx)
}

// wire connects the dependencies once; CLI commands call it before doing
// their one-off work.
func (a *App) wire(ctx context.Context) error {
	if a.deps != nil {
		return nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.deps = deps
	a.closers = append(a.closers, cleanup)
	return nil
}

// newKioskService builds the orchestration service over the wired
// dependencies. Disabled optional parts stay nil.
func (a *App) newKioskService() *service.KioskService {
	d := a.deps
	id := identity.New(d.API, a.logger)
	placer := fulfillment.NewPlacer(
		fulfillment.NewRegistrar(id, a.logger),
		id,
		clock.Real{},
		fulfillment.PlacerConfig{
			PollInterval:    a.cfg.Fulfillment.PollInterval.Duration,
			MaxPollAttempts: a.cfg.Fulfillment.MaxPollAttempts,
		},
		a.logger,
	)

	deps := service.KioskDeps{
		Placer:  placer,
		PIN:     fulfillment.NewPINConfirmer(id, a.logger),
		Locks:   d.LockManager,
		Limiter: d.RateLimiter,
		Bus:     d.SignalBus,
		Drafts:  d.DraftStore,
		Audit:   d.AuditStore,
		Runs:    d.FulfillmentStore,
	}
	// Typed nil pointers must not reach the interface fields.
	if d.Archiver != nil {
		deps.Receipts = d.Archiver
	}
	if d.Notifier != nil && d.Notifier.Enabled() {
		deps.Alerts = d.Notifier
	}

	return service.NewKioskService(service.KioskConfig{
		KioskID:          a.cfg.Kiosk.ID,
		DefaultAuctionID: a.cfg.Kiosk.DefaultAuctionID,
		RunTimeout:       a.cfg.Kiosk.RunTimeout.Duration,
		SessionTTL:       a.cfg.Kiosk.SessionTTL.Duration,
		PINAttempts:      a.cfg.Kiosk.PINAttempts,
		PINWindow:        a.cfg.Kiosk.PINWindow.Duration,
	}, deps, a.logger)
}

// SendBidderDetails asks the auction house to send a bidder their number and
// PIN, outside of any kiosk session.
func (a *App) SendBidderDetails(ctx context.Context, auctionID, identifier string) error {
	if err := a.wire(ctx); err != nil {
		return err
	}
	svc := a.newKioskService()
	defer func() { _ = svc.Shutdown(context.Background()) }()
	return svc.RetrieveBidderDetails(ctx, auctionID, identifier)
}

// ExportRuns writes every recorded run of an auction to object storage as
// JSONL and returns the object path and run count.
func (a *App) ExportRuns(ctx context.Context, auctionID string) (string, int, error) {
	if err := a.wire(ctx); err != nil {
		return "", 0, err
	}
	if a.deps.Archiver == nil {
		return "", 0, fmt.Errorf("app: export runs: s3 is disabled")
	}
	return a.deps.Archiver.ExportAuction(ctx, auctionID, time.Now())
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.deps = nil
}
