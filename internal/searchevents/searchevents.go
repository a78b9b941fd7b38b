// Package searchevents publishes one Kafka event per successful search.
package searchevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/router"
	h3mapper "github.com/mohammed-shakir/nearby-business-search/internal/mapper/h3"
)

type Event struct {
	ID       string    `json:"id"`
	TS       time.Time `json:"ts"`
	Industry string    `json:"industry"`
	Known    bool      `json:"known_industry"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	RadiusM  float64   `json:"radius_m"`
	Cell     string    `json:"cell,omitempty"`
	Results  int       `json:"results"`
	Scenario string    `json:"scenario,omitempty"`
}

type Sink interface {
	Publish(ev Event)
}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}

	// guards events against sends after Close
	mu     sync.RWMutex
	closed bool
}

func NewPublisher(logger *slog.Logger, brokers []string, topic string, queueSize int) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("searchevents: create async producer: %w", err)
	}
	return newWithProducer(logger, prod, topic, queueSize), nil
}

func newWithProducer(logger *slog.Logger, prod sarama.AsyncProducer, topic string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("searchevents: marshal error", "err", err)
				continue
			}
			msg := &sarama.ProducerMessage{
				Topic: p.topic,
				Value: sarama.ByteEncoder(b),
			}
			// keyed by cell so one area's events stay ordered on a partition
			if ev.Cell != "" {
				msg.Key = sarama.StringEncoder(ev.Cell)
			}
			p.prod.Input() <- msg
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncEvent("error")
				p.logger.Warn("searchevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish never blocks; events are dropped when the queue is full or the
// publisher is closed.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncEvent("dropped")
		return
	}
	select {
	case p.events <- ev:
		observability.IncEvent("queued")
	default:
		observability.IncEvent("dropped")
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("searchevents: close producer: %w", err)
	}
	return nil
}

type tracked struct {
	next     router.Searcher
	sink     Sink
	scenario string
	res      int
	mapr     *h3mapper.Mapper
	now      func() time.Time
}

// Wrap returns a Searcher that publishes an Event to sink after every
// successful search made through next. Failed searches publish nothing.
func Wrap(next router.Searcher, sink Sink, scenario string, res int) router.Searcher {
	return &tracked{
		next:     next,
		sink:     sink,
		scenario: scenario,
		res:      res,
		mapr:     h3mapper.New(),
		now:      time.Now,
	}
}

func (t *tracked) Search(ctx context.Context, req model.SearchRequest) ([]model.BusinessRecord, error) {
	recs, err := t.next.Search(ctx, req)
	if err != nil {
		return recs, err
	}
	cell, _ := t.mapr.CellForPoint(req.Center, t.res)
	t.sink.Publish(Event{
		ID:       uuid.NewString(),
		TS:       t.now().UTC(),
		Industry: overpass.NormalizeIndustry(req.Industry),
		Known:    overpass.Known(req.Industry),
		Lat:      req.Center.Lat,
		Lng:      req.Center.Lng,
		RadiusM:  req.RadiusM,
		Cell:     cell,
		Results:  len(recs),
		Scenario: t.scenario,
	})
	return recs, nil
}

