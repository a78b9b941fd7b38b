package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	cachestore "github.com/mohammed-shakir/nearby-business-search/internal/cache"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/keys"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/local"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/executor"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/router"
	"github.com/mohammed-shakir/nearby-business-search/internal/mapper"
	h3mapper "github.com/mohammed-shakir/nearby-business-search/internal/mapper/h3"
	"github.com/mohammed-shakir/nearby-business-search/internal/scenarios"
	"github.com/mohammed-shakir/nearby-business-search/internal/search"
)

// Engine snaps each search to its H3 cell and serves repeated searches for
// that cell, radius and industry from the local tier or Redis.
type Engine struct {
	logger    *slog.Logger
	svc       *search.Service
	store     *cachestore.Store
	redis     *redisstore.Client
	mapr      mapper.Interface
	res       int
	indexRes  int
	opTimeout time.Duration
	fetchTTL  time.Duration
	flight    singleflight.Group
}

func init() {
	scenarios.Register("cache", newCache)
}

func newCache(cfg config.Config, logger *slog.Logger, exec executor.Interface) (router.Searcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return New(cfg, logger, exec, rc), nil
}

// New builds the engine on an existing Redis client; the engine owns it afterwards.
func New(cfg config.Config, logger *slog.Logger, exec executor.Interface, rc *redisstore.Client) *Engine {
	indexRes := cfg.CacheIndexRes
	if indexRes > cfg.H3Res {
		indexRes = cfg.H3Res
	}
	fetchTTL := cfg.UpstreamTimeout
	if fetchTTL <= 0 {
		fetchTTL = 30 * time.Second
	}
	return &Engine{
		logger:    logger,
		svc:       search.NewService(logger, exec, cfg.OverpassTimeout),
		store:     cachestore.NewRedisStore(rc, cfg.CacheTTL, indexRes, local.New(cfg.LocalCacheSize, cfg.LocalCacheTTL)),
		redis:     rc,
		mapr:      h3mapper.New(),
		res:       cfg.H3Res,
		indexRes:  indexRes,
		opTimeout: cfg.CacheOpTimeout,
		fetchTTL:  fetchTTL,
	}
}

func (e *Engine) Search(ctx context.Context, req model.SearchRequest) ([]model.BusinessRecord, error) {
	start := time.Now()

	cell, err := e.mapr.CellForPoint(req.Center, e.res)
	if err != nil {
		return nil, fmt.Errorf("snap to cell: %w", err)
	}
	key := keys.SearchKey(e.res, cell, req.RadiusM, overpass.NormalizeIndustry(req.Industry))

	if recs, ok := e.lookup(ctx, key); ok {
		e.logger.DebugContext(ctx, "cache hit", "cell", cell, "key", key, "dur", time.Since(start).String())
		return search.Within(search.Present(recs, req), req.RadiusM), nil
	}

	// concurrent misses for one key share a single upstream request; the
	// shared fetch is detached from any one caller so it can fill the cache
	ch := e.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fetchTTL)
		defer cancel()
		return e.fill(fctx, key, cell, req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search abandoned: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		recs, _ := r.Val.([]model.BusinessRecord)
		e.logger.DebugContext(ctx, "cache fill",
			"cell", cell, "key", key, "shared", r.Shared,
			"records", len(recs), "dur", time.Since(start).String())
		return search.Within(search.Present(recs, req), req.RadiusM), nil
	}
}

func (e *Engine) lookup(ctx context.Context, key string) ([]model.BusinessRecord, bool) {
	octx, cancel := e.withOpTimeout(ctx)
	defer cancel()

	recs, ok, err := e.store.Get(octx, key)
	switch {
	case err != nil:
		e.logger.WarnContext(ctx, "cache get failed, searching upstream", "key", key, "err", err)
		observability.IncCacheMiss("redis")
		return nil, false
	case !ok:
		return nil, false
	}
	return recs, true
}

// fetchRadiusM widens radiusM by the furthest a requester can sit from its
// cell's centre, so the cached set holds every match for any requester in
// the cell. Results are cut back to radiusM per requester.
func (e *Engine) fetchRadiusM(radiusM float64) float64 {
	return radiusM + 1.5*h3mapper.EdgeLengthM(e.res)
}

// fill searches around the snapped cell's centre and caches the outcome.
// Failed searches are returned but never stored.
func (e *Engine) fill(ctx context.Context, key, cell string, req model.SearchRequest) ([]model.BusinessRecord, error) {
	center, err := e.mapr.CellCenter(cell)
	if err != nil {
		return nil, fmt.Errorf("cell centre: %w", err)
	}
	radius := e.fetchRadiusM(req.RadiusM)
	recs, err := e.svc.Fetch(ctx, center, radius, req.Industry)
	if err != nil {
		return nil, err
	}

	cover, err := e.coverage(cell, radius)
	if err != nil {
		e.logger.WarnContext(ctx, "coverage failed, result not cached", "cell", cell, "err", err)
		return recs, nil
	}

	octx, cancel := e.withOpTimeout(ctx)
	defer cancel()
	if err := e.store.Put(octx, key, recs, cover); err != nil {
		e.logger.WarnContext(ctx, "cache put failed", "key", key, "err", err)
	}
	return recs, nil
}

// coverage lists the index cells a search around cell with radiusM can reach.
func (e *Engine) coverage(cell string, radiusM float64) (model.Cells, error) {
	parent, err := e.mapr.ToParent(cell, e.indexRes)
	if err != nil {
		return nil, err
	}
	cells, err := e.mapr.Disk(parent, h3mapper.RingsFor(radiusM, e.indexRes))
	if err != nil {
		return nil, err
	}
	return cells, nil
}

func (e *Engine) withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opTimeout)
}

// InvalidateCells drops cached searches indexed under cells (at the index resolution).
func (e *Engine) InvalidateCells(ctx context.Context, cells []string) (int, error) {
	n, err := e.store.InvalidateCells(ctx, cells)
	if err != nil {
		return n, fmt.Errorf("invalidate cells: %w", err)
	}
	return n, nil
}

// IndexRes is the resolution InvalidateCells expects.
func (e *Engine) IndexRes() int { return e.indexRes }

func (e *Engine) Ready(ctx context.Context) error {
	return e.redis.Ping(ctx)
}

func (e *Engine) Close() error {
	if e.redis == nil {
		return nil
	}
	return e.redis.Close()
}
