// Command depcheck verifies that the services the search server depends on
// are reachable: Redis, Kafka and the Overpass interpreter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/executor"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/httpclient"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation"
	"github.com/mohammed-shakir/nearby-business-search/internal/logger"
	h3mapper "github.com/mohammed-shakir/nearby-business-search/internal/mapper/h3"
)

var stockholm = model.Coordinate{Lat: 59.3293, Lng: 18.0686}

func testRedis(ctx context.Context, addr string) error {
	cli, err := redisstore.New(ctx, addr)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Set(ctx, "depcheck:hello", []byte("world"), 30*time.Second); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	got, err := cli.MGet(ctx, []string{"depcheck:hello"})
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	if string(got["depcheck:hello"]) != "world" {
		return fmt.Errorf("redis round trip returned %q", got["depcheck:hello"])
	}
	return nil
}

func testKafka(brokers []string, topics ...string) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	have, err := client.Topics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	for _, t := range topics {
		if !slices.Contains(have, t) {
			return fmt.Errorf("topic %q not found", t)
		}
	}
	return nil
}

// sendInvalidation publishes one bbox event around p so an operator can watch
// the cache consumer react.
func sendInvalidation(brokers []string, topic string, p model.Coordinate) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	ev := invalidation.Event{
		ID:      uuid.NewString(),
		Version: 1,
		Op:      "update",
		TS:      time.Now().UTC(),
		Source:  "depcheck",
		BBox:    &invalidation.BBox{X1: p.Lng, Y1: p.Lat, X2: p.Lng, Y2: p.Lat, SRID: "EPSG:4326"},
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, _, err := prod.SendMessage(&sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(b)}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func testOverpass(ctx context.Context, log *slog.Logger, cfg config.Config) (int, error) {
	exec, err := executor.New(log, httpclient.NewOutbound(cfg.UpstreamTimeout), cfg.OverpassURL, executor.Options{})
	if err != nil {
		return 0, err
	}
	ql, err := overpass.Build(overpass.Query{
		Terms:    overpass.Translate("cafe"),
		Center:   stockholm,
		RadiusM:  200,
		TimeoutS: 10,
	})
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	els, err := exec.FetchElements(ctx, ql)
	if err != nil {
		return 0, fmt.Errorf("overpass: %w", err)
	}
	return len(els), nil
}

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	invalidate := flag.Bool("send-invalidation", false, "publish one invalidation event around Stockholm")
	flag.Parse()

	config.LoadDotEnv(*envFile)
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: true, Component: "depcheck"}, os.Stderr)
	log := logger.NewSlog(&zl)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	failed := false
	check := func(name string, err error, attrs ...any) {
		if err != nil {
			failed = true
			log.Error(name+" check failed", append(attrs, "err", err)...)
			return
		}
		log.Info(name+" ok", attrs...)
	}

	check("redis", testRedis(ctx, cfg.RedisAddr), "addr", cfg.RedisAddr)

	brokers := config.SplitCSV(cfg.Invalidation.Brokers)
	check("kafka", testKafka(brokers, cfg.Invalidation.Topic, cfg.Events.Topic), "brokers", brokers)
	if *invalidate {
		check("invalidation publish", sendInvalidation(brokers, cfg.Invalidation.Topic, stockholm), "topic", cfg.Invalidation.Topic)
	}

	n, err := testOverpass(ctx, log, cfg)
	check("overpass", err, "url", cfg.OverpassURL, "elements", n)

	m := h3mapper.New()
	if cell, err := m.CellForPoint(stockholm, cfg.H3Res); err == nil {
		parent, _ := m.ToParent(cell, cfg.CacheIndexRes)
		log.Info("h3 snapping", "res", cfg.H3Res, "cell", cell, "index_res", cfg.CacheIndexRes, "index_cell", parent)
	}

	if failed {
		os.Exit(1)
	}
	log.Info("all checks passed")
}
