package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"transform-registry/internal/metrics"
	"transform-registry/internal/middleware"
)

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics // nil disables /metrics
	CORSAllowedOrigins []string
	RateLimit          *middleware.RateLimitConfig // nil disables rate limiting
	// Ping checks the backing store for /healthz. nil always reports ok.
	Ping func(ctx context.Context) error
}

// NewRouter mounts the handlers and middleware. ctx bounds background work
// started by the middleware.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler(cfg.Ping))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(middleware.RateLimiter(ctx, *cfg.RateLimit))
		}

		r.Get("/transformation-types", h.listTypes)
		r.Get("/update-pipeline", h.resolveUpdatePipeline)
		r.Get("/audit", h.listAudit)

		r.Route("/transformations", func(r chi.Router) {
			r.Get("/", h.listTransformations)
			r.Put("/{id}", h.defineTransformation)
			r.Get("/{id}", h.getTransformation)
			r.Delete("/{id}", h.deleteTransformation)
			r.Post("/{id}/processed", h.markProcessed)
		})

		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/order", h.jobOrder)
			r.Get("/graph", h.jobGraph)
		})
	})
	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
