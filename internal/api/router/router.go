package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
	"github.com/wolfman30/realestate-marketplace/internal/contracts"
	httpmiddleware "github.com/wolfman30/realestate-marketplace/internal/http/middleware"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/internal/proposals"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Verifier           *auth.Verifier
	Proposals          *proposals.Handler
	Notifications      *notify.Handler
	Hub                *notify.Hub
	Contracts          *contracts.Handler
	ProposalLimiter    *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Ready reports dependency health for /health (optional).
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Ready, cfg.Logger))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	requireAuth := httpmiddleware.RequireAuth(cfg.Verifier)

	if cfg.Hub != nil {
		r.With(requireAuth).Get("/ws/notifications", cfg.Hub.HandleWebSocket)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(requireAuth)

		if cfg.Proposals != nil {
			var submit []func(http.Handler) http.Handler
			if cfg.ProposalLimiter != nil {
				submit = append(submit, httpmiddleware.RateLimit(cfg.ProposalLimiter))
			}
			api.Route("/proposals", func(r chi.Router) {
				cfg.Proposals.Routes(r, submit...)
			})
		}
		if cfg.Notifications != nil {
			api.Route("/notifications", cfg.Notifications.Routes)
		}
		if cfg.Contracts != nil {
			api.Get("/contracts/{contractID}", cfg.Contracts.GetContract)
			api.Get("/contracts/{contractID}/document", cfg.Contracts.GetDocument)
		}
	})

	return r
}

// healthHandler keeps dependency errors in the log; the body only carries status.
func healthHandler(ready func(ctx context.Context) error, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "degraded"}
				if logger != nil {
					logger.Error("health check failed", "error", err)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
