package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	sessions func() int
	checks   map[string]Pinger
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. sessions reports the number of
// in-memory kiosk sessions; checks are pinged on every request.
func NewHealthHandler(sessions func() int, checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{sessions: sessions, checks: checks, logger: logHandler(logger, "health")}
}

// HealthCheck responds with the server status and the state of each
// backing dependency. Any failing dependency turns the response into 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.sessions != nil {
		body["active_sessions"] = h.sessions()
	}
	writeJSON(w, status, body)
}
