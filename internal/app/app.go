// Package app provides application-level wiring and dependency injection
// for the transformation registry following hexagonal architecture.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"transform-registry/internal/api"
	"transform-registry/internal/config"
	internaldb "transform-registry/internal/db"
	"transform-registry/internal/db/repository"
	"transform-registry/internal/metrics"
	"transform-registry/internal/middleware"
	"transform-registry/internal/service/transformation"
	"transform-registry/internal/sqlcheck"
)

// App holds the fully-wired registry: storage pools, the service, and the
// HTTP handler serving it.
type App struct {
	Pools   *internaldb.Pools
	Service *transformation.Service
	Metrics *metrics.Metrics // nil when metrics are disabled
	Handler http.Handler
}

// New opens the store at cfg.DBPath, applies migrations, and wires every
// component. ctx bounds background work started by the HTTP middleware.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pools, err := internaldb.OpenPools(cfg.DBPath, cfg.ReadPoolSize)
	if err != nil {
		return nil, fmt.Errorf("open registry store: %w", err)
	}
	if err := internaldb.RunMigrations(pools.Write); err != nil {
		_ = pools.Close()
		return nil, fmt.Errorf("migrate registry store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// === Repositories ===
	transformations := repository.NewTransformationRepo(pools.Write, pools.Read)
	audit := repository.NewAuditRepo(pools.Write)

	// === Service ===
	svc := transformation.NewService(
		transformations, audit, sqlcheck.New(), m,
		logger.With("component", "transformation-service"),
	)

	// === HTTP ===
	handler := api.NewRouter(ctx,
		api.NewHandler(svc, logger.With("component", "api")),
		api.RouterConfig{
			Logger:             logger.With("component", "http"),
			Metrics:            m,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimit: &middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitRPS,
				Burst:             cfg.RateLimitBurst,
			},
			Ping: pools.Read.PingContext,
		},
	)

	return &App{Pools: pools, Service: svc, Metrics: m, Handler: handler}, nil
}

// Close releases the storage pools.
func (a *App) Close() error {
	return a.Pools.Close()
}
