// Package cache implements the two tier search result cache and its cell
// index used for spatial invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache/cellindex"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/local"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/resultstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
)

// Invalidator drops every cached search registered under the given index cells.
type Invalidator interface {
	InvalidateCells(ctx context.Context, cells []string) (int, error)
}

type Store struct {
	Results  resultstore.ResultStore
	Cells    cellindex.CellIndex
	Local    *local.Cache
	IndexRes int
	TTL      time.Duration
}

func NewRedisStore(cli *redisstore.Client, ttl time.Duration, indexRes int, l1 *local.Cache) *Store {
	return &Store{
		Results:  resultstore.NewRedisStore(cli, ttl),
		Cells:    cellindex.NewRedisIndex(cli),
		Local:    l1,
		IndexRes: indexRes,
		TTL:      ttl,
	}
}

// Get checks the local tier, then Redis. A Redis hit refills the local tier.
func (s *Store) Get(ctx context.Context, key string) ([]model.BusinessRecord, bool, error) {
	if recs, ok := s.Local.Get(key); ok {
		observability.IncCacheHit("local")
		return recs, true, nil
	}
	observability.IncCacheMiss("local")

	recs, ok, err := s.Results.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	s.Local.Add(key, recs)
	return recs, true, nil
}

// Put stores recs under key and registers key under every index cell. Index
// sets live twice as long as entries so a live entry is never unindexed.
func (s *Store) Put(ctx context.Context, key string, recs []model.BusinessRecord, indexCells []string) error {
	if err := s.Results.Put(ctx, key, recs, s.TTL); err != nil {
		return err
	}
	if err := s.Cells.Add(ctx, s.IndexRes, indexCells, key, 2*s.TTL); err != nil {
		// an unindexed entry could not be invalidated, so drop it
		_ = s.Results.Delete(ctx, key)
		return err
	}
	s.Local.Add(key, recs)
	return nil
}

func (s *Store) InvalidateCells(ctx context.Context, cells []string) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	keys, err := s.Cells.Lookup(ctx, s.IndexRes, cells)
	if err != nil {
		return 0, fmt.Errorf("lookup index: %w", err)
	}
	s.Local.Remove(keys...)
	if len(keys) == 0 {
		return 0, nil
	}

	var errs []error
	if err := s.Results.Delete(ctx, keys...); err != nil {
		errs = append(errs, err)
	}
	if err := s.Cells.Remove(ctx, s.IndexRes, cells, keys); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("invalidate %d keys: %w", len(keys), err)
	}
	return len(keys), nil
}
