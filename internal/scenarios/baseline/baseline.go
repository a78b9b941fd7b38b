package baseline

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/executor"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/router"
	"github.com/mohammed-shakir/nearby-business-search/internal/scenarios"
	"github.com/mohammed-shakir/nearby-business-search/internal/search"
)

// Engine sends every search straight to Overpass.
type Engine struct {
	logger *slog.Logger
	svc    *search.Service
}

func init() {
	scenarios.Register("baseline", newBaseline)
}

func newBaseline(cfg config.Config, logger *slog.Logger, exec executor.Interface) (router.Searcher, error) {
	return &Engine{
		logger: logger,
		svc:    search.NewService(logger, exec, cfg.OverpassTimeout),
	}, nil
}

func (e *Engine) Search(ctx context.Context, req model.SearchRequest) ([]model.BusinessRecord, error) {
	recs, err := e.svc.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "baseline search",
		"center", req.Center.String(),
		"radius_m", req.RadiusM,
		"records", len(recs))
	return recs, nil
}
