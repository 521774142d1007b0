package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionkiosk/internal/server"
	"github.com/alanyoungcy/auctionkiosk/internal/server/handler"
	"github.com/alanyoungcy/auctionkiosk/internal/server/ws"
	"github.com/alanyoungcy/auctionkiosk/internal/service"
)

// shutdownGrace bounds how long in-flight runs and requests get to finish.
const shutdownGrace = 10 * time.Second

// Serve runs the kiosk API, the WebSocket hub and the session janitor until
// ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	svc := a.newKioskService()

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.deps.SignalBus, a.logger, ws.Config{
		KioskID:   a.cfg.Kiosk.ID,
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Sessions:  svc.ActiveSessions,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(svc.ActiveSessions, a.deps.Checks, a.logger),
		Sessions: handler.NewSessionHandler(svc, a.logger),
		Auctions: handler.NewAuctionHandler(svc, a.logger),
	}, hub, a.deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		a.sweepSessions(ctx, svc)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := svc.Shutdown(shutCtx); err != nil {
			a.logger.Warn("runs still in flight at shutdown", slog.String("error", err.Error()))
		}
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// sweepSessions drops idle sessions from memory on every sweep interval.
func (a *App) sweepSessions(ctx context.Context, svc *service.KioskService) {
	interval := a.cfg.Kiosk.SweepInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := svc.Sweep(now); n > 0 {
				a.logger.InfoContext(ctx, "swept idle sessions",
					slog.Int("count", n),
					slog.Int("remaining", svc.ActiveSessions()),
				)
			}
		}
	}
}
