package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"warden/internal/platform/metrics"
	"warden/internal/platform/middleware"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/requesttime"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// Ready reports backend health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
	// ClientIP resolves the address used for IP throttling. Nil trusts no
	// proxy headers.
	ClientIP *metadata.Resolver
}

// NewRouter wires all public endpoints. Handlers stay thin and delegate to
// the gate so transport concerns remain isolated.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.RequestID)
	r.Use(cfg.ClientIP.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", metadata.HeaderRequestID},
			ExposedHeaders:   []string{metadata.HeaderRequestID, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthz(cfg.Ready, h.logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Post("/users", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/resume", h.handleResume)
		r.Post("/activations", h.handleCreateActivation)
		r.Post("/activations/complete", h.handleCompleteActivation)
		r.Post("/reminders", h.handleCreateReminder)
		r.Post("/reminders/complete", h.handleCompleteReminder)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(h.Sessions(), h.logger))
			r.Get("/auth/session", h.handleSession)
			r.Post("/auth/logout", h.handleLogout)
		})
	})
	return r
}

func healthz(ready func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
