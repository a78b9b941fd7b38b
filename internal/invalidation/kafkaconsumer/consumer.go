// Package kafkaconsumer applies invalidation events from a Kafka topic to the
// search cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	obs "github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation"
	mylog "github.com/mohammed-shakir/nearby-business-search/internal/logger"
)

type CellMapper interface {
	CellsCoveringBBox(bb model.BBox, res int) (model.Cells, error)
	CellsCoveringPolygon(poly model.Polygon, res int) (model.Cells, error)
}

type Consumer struct {
	cfg      Config
	logger   *slog.Logger
	cache    cache.Invalidator
	mapper   CellMapper
	indexRes int
	dedupe   *idDedupe

	assignMu sync.RWMutex
	assign   map[int32]struct{}
	ready    bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a consumer that maps each event to cells at indexRes, the
// resolution cached searches are indexed under.
func New(cfg Config, logger *slog.Logger, c cache.Invalidator, mapper CellMapper, indexRes int) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	return &Consumer{
		cfg:      cfg,
		logger:   logger,
		cache:    c,
		mapper:   mapper,
		indexRes: indexRes,
		dedupe:   newIDDedupe(cfg.DedupeSize),
		assign:   map[int32]struct{}{},
	}
}

// Start joins the consumer group and consumes in the background until ctx is
// cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil || c.mapper == nil {
		return errors.New("kafkaconsumer: missing dependencies (cache/mapper)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(mylog.WithComponent(ctx, "kafka_consumer"))
	c.cancel = cancel
	h := c.handler()

	c.logger.InfoContext(ctx, "kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID, "index_res", c.indexRes)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.logger.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				obs.IncKafkaConsumerError("consume")
				c.logger.ErrorContext(ctx, "kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				c.logger.Info("kafka invalidation consumer shutting down")
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			obs.IncKafkaConsumerError("group")
			c.logger.Error("kafka group error", "err", err)
		}
	}()
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Readiness reports whether the consumer currently owns partitions.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	if !c.ready {
		return false, nil
	}
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.ready = true
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			c.ready = false
			c.assign = map[int32]struct{}{}
			c.assignMu.Unlock()
		},
		process: c.ProcessOne,
	}
}

// ProcessOne applies a single message. Undecodable or invalid events are
// logged and acknowledged since redelivery cannot fix them; cache failures
// are returned so the offset is not marked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.WarnContext(ctx, "skipping undecodable invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("validate")
		c.logger.WarnContext(ctx, "skipping invalid invalidation event",
			"id", ev.ID, "offset", msg.Offset, "err", err)
		return nil
	}
	if c.dedupe.seen(ev.ID) {
		obs.ObserveInvalidation("duplicate", 0, time.Since(start), nil)
		c.logger.DebugContext(ctx, "invalidation event already applied", "id", ev.ID)
		return nil
	}

	cells, err := c.cellsForEvent(ev)
	if err != nil {
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), err)
		c.logger.WarnContext(ctx, "skipping unmappable invalidation event", "id", ev.ID, "err", err)
		return nil
	}
	if len(cells) == 0 {
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), nil)
		c.dedupe.remember(ev.ID)
		return nil
	}

	applyCtx, cancel := context.WithTimeout(ctx, c.cfg.ApplyTimeout)
	defer cancel()
	n, err := c.cache.InvalidateCells(applyCtx, cells)
	obs.ObserveInvalidation(ev.Op, n, time.Since(start), err)
	if err != nil {
		obs.IncKafkaConsumerError("cache")
		c.logger.ErrorContext(ctx, "invalidation failed",
			"id", ev.ID, "partition", msg.Partition, "offset", msg.Offset,
			"cells", len(cells), "err", err)
		return fmt.Errorf("invalidate %d cells: %w", len(cells), err)
	}
	c.dedupe.remember(ev.ID)

	c.logger.InfoContext(ctx, "invalidated cached searches",
		"id", ev.ID, "op", ev.Op, "source", ev.Source, "cells", len(cells), "keys", n)
	return nil
}

func (c *Consumer) cellsForEvent(ev invalidation.Event) (model.Cells, error) {
	if ev.BBox != nil {
		cells, err := c.mapper.CellsCoveringBBox(ev.BBox.Model(), c.indexRes)
		if err != nil {
			return nil, fmt.Errorf("CellsCoveringBBox: %w", err)
		}
		return cells, nil
	}
	cells, err := c.mapper.CellsCoveringPolygon(model.Polygon{GeoJSON: string(ev.Geometry)}, c.indexRes)
	if err != nil {
		return nil, fmt.Errorf("CellsCoveringPolygon: %w", err)
	}
	return cells, nil
}
