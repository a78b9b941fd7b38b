package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type EventsCfg struct {
	Enabled   bool
	Brokers   string
	Topic     string
	QueueSize int
}

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	OverpassURL     string
	SearchRadiusM   float64
	OverpassTimeout time.Duration
	UpstreamTimeout time.Duration
	UpstreamRPS     float64
	UpstreamBurst   int
	Scenario        string
	RedisAddr       string
	H3Res           int
	CacheIndexRes   int
	CacheTTL        time.Duration
	CacheOpTimeout  time.Duration
	LocalCacheSize  int
	LocalCacheTTL   time.Duration
	Events          EventsCfg
	Invalidation    InvalidationCfg
	MapTilerKey     string
	MapStyleURL     string
	MetricsEnabled  bool
	MetricsAddr     string
	MetricsPath     string
}

// LoadDotEnv reads .env files into the process environment without
// overriding variables that are already set. Missing files are not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}

	radius := getfloat("SEARCH_RADIUS_M", 5000)
	if radius <= 0 {
		radius = 5000
	}

	// the invalidation index is coarser than (or equal to) the snapping grid
	indexRes := getint("CACHE_INDEX_RES", 5)
	if indexRes < 0 || indexRes > res {
		indexRes = min(5, res)
	}

	cacheTTL := getduration("CACHE_TTL", 10*time.Minute)

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		OverpassURL:     getenv("OVERPASS_URL", "https://overpass-api.de"),
		SearchRadiusM:   radius,
		OverpassTimeout: getduration("OVERPASS_TIMEOUT", 25*time.Second),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRPS:     getfloat("UPSTREAM_RPS", 1),
		UpstreamBurst:   getint("UPSTREAM_BURST", 2),
		Scenario:        getenv("SCENARIO", "baseline"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		H3Res:           res,
		CacheIndexRes:   indexRes,
		CacheTTL:        cacheTTL,
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		LocalCacheSize:  getint("LOCAL_CACHE_SIZE", 512),
		LocalCacheTTL:   getduration("LOCAL_CACHE_TTL", cacheTTL/2),
		Events: EventsCfg{
			Enabled:   getbool("EVENTS_ENABLED", false),
			Brokers:   getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:     getenv("KAFKA_SEARCH_TOPIC", "search-events"),
			QueueSize: getint("EVENTS_QUEUE_SIZE", 1024),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_INVALIDATION_TOPIC", "osm-changes"),
			GroupID: getenv("KAFKA_GROUP_ID", "search-cache-invalidator"),
		},
		MapTilerKey:    getenv("MAPTILER_API_KEY", ""),
		MapStyleURL:    getenv("MAP_STYLE_URL", "https://api.maptiler.com/maps/streets-v2/style.json"),
		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
	}
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
