// Package cellindex tracks which cached searches cover which H3 cells.
package cellindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache/keys"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
)

type CellIndex interface {
	// Add registers searchKey under every cell at res.
	Add(ctx context.Context, res int, cells []string, searchKey string, ttl time.Duration) error

	// Lookup returns the unique, sorted search keys registered under any of cells.
	Lookup(ctx context.Context, res int, cells []string) ([]string, error)

	// Remove unregisters searchKeys from cells. Keys registered since the
	// caller's Lookup stay indexed.
	Remove(ctx context.Context, res int, cells []string, searchKeys []string) error
}

type redisCellIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) CellIndex {
	return &redisCellIndex{cli: cli}
}

func (ci *redisCellIndex) Add(ctx context.Context, res int, cells []string, searchKey string, ttl time.Duration) error {
	if len(cells) == 0 || searchKey == "" {
		return nil
	}
	if err := ci.cli.SAddMany(ctx, indexKeys(res, cells), searchKey, ttl); err != nil {
		return fmt.Errorf("cellindex add %d cells: %w", len(cells), err)
	}
	return nil
}

func (ci *redisCellIndex) Lookup(ctx context.Context, res int, cells []string) ([]string, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	sets, err := ci.cli.SMembersMany(ctx, indexKeys(res, cells))
	if err != nil {
		return nil, fmt.Errorf("cellindex lookup %d cells: %w", len(cells), err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, members := range sets {
		for _, m := range members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (ci *redisCellIndex) Remove(ctx context.Context, res int, cells []string, searchKeys []string) error {
	if len(cells) == 0 || len(searchKeys) == 0 {
		return nil
	}
	if err := ci.cli.SRemMany(ctx, indexKeys(res, cells), searchKeys); err != nil {
		return fmt.Errorf("cellindex remove %d keys from %d cells: %w", len(searchKeys), len(cells), err)
	}
	return nil
}

func indexKeys(res int, cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = keys.CellIndexKey(res, c)
	}
	return out
}
