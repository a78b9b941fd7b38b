package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds how many event ids are remembered for redelivery checks.
	DedupeSize int
	// ApplyTimeout caps the redis work for one event.
	ApplyTimeout time.Duration
}

func FromConfig(c config.InvalidationCfg) Config {
	return Config{
		Brokers:             config.SplitCSV(c.Brokers),
		Topic:               c.Topic,
		GroupID:             c.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: false,
		DedupeSize:          8192,
		ApplyTimeout:        5 * time.Second,
	}
}
