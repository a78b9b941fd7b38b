package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/health"
	middleware "github.com/mohammed-shakir/nearby-business-search/internal/core/middleware"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/router"
)

// NewRouter wires every public route. checks back /readyz.
func NewRouter(cfg config.Config, logger *slog.Logger, s router.Searcher, checks ...health.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, checks...))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/search", router.HandleSearch(logger, cfg, s))
	r.Get("/industries", router.HandleIndustries())
	r.Get("/map/config", router.HandleMapConfig(cfg))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, s router.Searcher, checks ...health.Check) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, s, checks...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// an Overpass query may take the whole upstream timeout
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
