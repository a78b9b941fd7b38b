// Package resultstore keeps normalized search results in Redis.
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

type ResultStore interface {
	Get(ctx context.Context, key string) ([]model.BusinessRecord, bool, error)

	Put(ctx context.Context, key string, recs []model.BusinessRecord, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error
}

type redisResultStore struct {
	cli        *redisstore.Client
	defaultTTL time.Duration
}

func NewRedisStore(cli *redisstore.Client, defaultTTL time.Duration) ResultStore {
	return &redisResultStore{
		cli:        cli,
		defaultTTL: defaultTTL,
	}
}

func (s *redisResultStore) Get(ctx context.Context, key string) ([]model.BusinessRecord, bool, error) {
	raw, err := s.cli.MGet(ctx, []string{key})
	if err != nil {
		return nil, false, fmt.Errorf("resultstore redis MGET %q: %w", key, err)
	}
	body, ok := raw[key]
	if !ok {
		return nil, false, nil
	}

	recs := []model.BusinessRecord{}
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, false, fmt.Errorf("resultstore decode %q: %w", key, err)
	}
	return recs, true, nil
}

func (s *redisResultStore) Put(ctx context.Context, key string, recs []model.BusinessRecord, ttl time.Duration) error {
	t := ttl
	if t <= 0 {
		t = s.defaultTTL
	}
	if recs == nil {
		recs = []model.BusinessRecord{}
	}

	body, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("resultstore encode %q: %w", key, err)
	}
	if err := s.cli.Set(ctx, key, body, t); err != nil {
		return fmt.Errorf("resultstore redis SET %q: %w", key, err)
	}
	return nil
}

func (s *redisResultStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.cli.Del(ctx, keys...); err != nil {
		return fmt.Errorf("resultstore redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}
