package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/executor"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/health"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/httpclient"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/router"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/server"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/nearby-business-search/internal/logger"
	h3mapper "github.com/mohammed-shakir/nearby-business-search/internal/mapper/h3"
	"github.com/mohammed-shakir/nearby-business-search/internal/metrics"
	"github.com/mohammed-shakir/nearby-business-search/internal/scenarios"
	_ "github.com/mohammed-shakir/nearby-business-search/internal/scenarios/baseline"
	_ "github.com/mohammed-shakir/nearby-business-search/internal/scenarios/cache"
	"github.com/mohammed-shakir/nearby-business-search/internal/searchevents"
)

var Version = "dev"

// implemented by scenarios that keep an invalidatable cache
type invalidationTarget interface {
	cache.Invalidator
	IndexRes() int
}

type readyChecker interface {
	Ready(ctx context.Context) error
}

func main() {
	os.Exit(run())
}

func run() int {
	// overriding scenario via flag
	scenarioFlag := flag.String("scenario", "", "scenario name")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	config.LoadDotEnv(*envFile)
	cfg := config.FromEnv()
	if *scenarioFlag != "" {
		cfg.Scenario = strings.TrimSpace(*scenarioFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Scenario:  cfg.Scenario,
		Component: "search-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.SetScenario(cfg.Scenario)
	observability.ExposeBuildInfo(Version)

	httpClient := httpclient.NewOutbound(cfg.UpstreamTimeout)
	exec, err := executor.New(appLog, httpClient, cfg.OverpassURL, executor.Options{
		RPS:   cfg.UpstreamRPS,
		Burst: cfg.UpstreamBurst,
	})
	if err != nil {
		appLog.Error("failed to initialize executor", "err", err)
		return 1
	}
	appLog.Info("starting search server",
		"addr", cfg.Addr,
		"version", Version,
		"overpass", exec.Endpoint(),
		"scenario", cfg.Scenario)

	// selected scenario
	searcher, err := scenarios.New(cfg.Scenario, cfg, appLog, exec)
	if err != nil {
		appLog.Error("scenario setup failed", "err", err)
		return 1
	}
	if c, ok := searcher.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []health.Check
	if rc, ok := searcher.(readyChecker); ok {
		checks = append(checks, health.Check{Name: "redis", Fn: rc.Ready})
	}

	if cfg.Invalidation.Enabled {
		target, ok := searcher.(invalidationTarget)
		if !ok {
			appLog.Warn("invalidation enabled but scenario keeps no cache; ignoring", "scenario", cfg.Scenario)
		} else {
			cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, target, h3mapper.New(), target.IndexRes())
			if err := cons.Start(ctx); err != nil {
				appLog.Error("invalidation consumer failed to start", "err", err)
				return 1
			}
			defer cons.Stop()
			checks = append(checks, health.ReporterCheck("kafka_invalidation", cons))
		}
	}

	var handler router.Searcher = searcher
	if cfg.Events.Enabled {
		pub, err := searchevents.NewPublisher(appLog, config.SplitCSV(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.QueueSize)
		if err != nil {
			// search works without events; keep serving
			appLog.Warn("search events disabled", "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("search events close", "err", err)
				}
			}()
			handler = searchevents.Wrap(searcher, pub, cfg.Scenario, cfg.H3Res)
		}
	}

	if cfg.MetricsEnabled {
		startMetrics(ctx, cfg, appLog)
	} else {
		observability.Init(nil, false)
	}

	if err := server.Run(ctx, cfg, appLog, handler, checks...); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func startMetrics(ctx context.Context, cfg config.Config, appLog *slog.Logger) {
	p := metrics.Init(metrics.Config{
		Enabled: true,
		Addr:    cfg.MetricsAddr,
		Path:    cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), true)

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, p.Handler())

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		appLog.Info("metrics listening", "addr", cfg.MetricsAddr, "path", cfg.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("metrics server exited", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("metrics shutdown", "err", err)
		}
	}()
}
