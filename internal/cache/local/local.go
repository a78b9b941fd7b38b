// Package local is the in-process tier in front of Redis.
package local

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

// Cache is a size and age bounded LRU. A nil *Cache is a valid, always-missing cache.
type Cache struct {
	lru *expirable.LRU[string, []model.BusinessRecord]
}

// New returns nil when size <= 0.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, []model.BusinessRecord](size, nil, ttl)}
}

func (c *Cache) Get(key string) ([]model.BusinessRecord, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *Cache) Add(key string, recs []model.BusinessRecord) {
	if c == nil {
		return
	}
	c.lru.Add(key, recs)
}

// Remove drops keys and reports how many were present.
func (c *Cache) Remove(keys ...string) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, k := range keys {
		if c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
