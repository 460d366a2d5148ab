package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/civicledger/civicledger/internal/platform/httpx"
)

// RouteMounter is implemented by every feature handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// RouterConfig collects everything the HTTP router needs.
type RouterConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Ledger  RouteMounter
	Budget  RouteMounter
	Salary  RouteMounter
	Revenue RouteMounter
	Jobs    RouteMounter
}

// NewRouter assembles the middleware stack and mounts all feature
// routes under /api/v1.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: cfg.Logger, Config: cfg.Config}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if cfg.Pool != nil {
			if err := cfg.Pool.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "database unreachable")
				return
			}
		}
		if cfg.Redis != nil {
			if err := cfg.Redis.Ping(ctx).Err(); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "redis unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Ledger != nil {
			r.Route("/ledger", cfg.Ledger.MountRoutes)
		}
		if cfg.Budget != nil {
			r.Route("/budget", cfg.Budget.MountRoutes)
		}
		if cfg.Salary != nil {
			r.Route("/salary", cfg.Salary.MountRoutes)
		}
		if cfg.Revenue != nil {
			r.Route("/revenue", cfg.Revenue.MountRoutes)
		}
		if cfg.Jobs != nil {
			r.Route("/jobs", cfg.Jobs.MountRoutes)
		}
	})

	return r
}
