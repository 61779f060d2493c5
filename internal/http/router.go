// Package httpapi assembles the application router: platform middleware,
// module handlers, and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pharmatrace/internal/platform/metrics"
	"pharmatrace/internal/platform/middleware"
	"pharmatrace/pkg/platform/httputil"
)

// ModuleHandler registers a module's routes on the router.
type ModuleHandler interface {
	Register(r chi.Router)
}

// HealthChecker reports the health of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires the shared middleware chain, every module handler, and the
// operational endpoints.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, health map[string]HealthChecker, handlers ...ModuleHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger, m))

	for _, h := range handlers {
		h.Register(r)
	}

	r.Get("/healthz", handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// handleHealth pings each registered dependency with a short deadline and
// reports per-dependency status. Any failing dependency turns the response
// into a 503.
func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				deps[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       http.StatusText(status),
			"dependencies": deps,
		})
	}
}
