package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	"github.com/mohammed-shakir/nearby-business-search/internal/logger"
)

type Config struct {
	TargetURL       string
	Industries      []string
	RadiusM         float64
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	PointCount      int
	JitterM         float64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	TimestampFormat string
	CentroidFile    string
}

func loadConfig() Config {
	var cfg Config
	var industries string
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/search", "Search server /search URL")
	flag.StringVar(&industries, "industries", strings.Join(overpass.Industries(), ","), "Industries CSV, picked uniformly")
	flag.Float64Var(&cfg.RadiusM, "radius", 0, "Search radius in metres (0 uses the server default)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 8, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.PointCount, "points", 128, "Distinct search centres in pool")
	flag.Float64Var(&cfg.JitterM, "jitter", 150, "Per-request jitter around a centre in metres")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/search", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 40*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.StringVar(&cfg.TimestampFormat, "ts-format", "iso", "Timestamp format: iso|unix|none")
	flag.StringVar(&cfg.CentroidFile, "centroids", "", "Optional centroid CSV file (id,lon,lat) to drive search centres")
	flag.Parse()
	cfg.Industries = splitCSV(industries)
	return cfg
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

type Point struct{ Lat, Lng float64 }

// jittered moves p by up to maxM metres so nearby users land in the same or
// neighbouring cells.
func (p Point) jittered(r *rand.Rand, maxM float64) Point {
	if maxM <= 0 {
		return p
	}
	const mPerDeg = 111320.0
	d := r.Float64() * maxM
	theta := r.Float64() * 2 * math.Pi
	dLat := d * math.Cos(theta) / mPerDeg
	dLng := d * math.Sin(theta) / (mPerDeg * math.Max(math.Cos(p.Lat*math.Pi/180), 1e-6))
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// makePoints creates "hot" centres around a few cities and "cold" ones spread
// over Sweden.
func makePoints(count int, r *rand.Rand) []Point {
	cities := []Point{
		{59.3293, 18.0686}, // Stockholm
		{57.7089, 11.9746}, // Göteborg
		{55.6050, 13.0038}, // Malmö
		{65.5848, 22.1547}, // Luleå
	}
	points := make([]Point, 0, count)

	hot := int(math.Max(8, float64(count/4)))
	for i := 0; i < hot && len(points) < count; i++ {
		c := cities[i%len(cities)]
		points = append(points, Point{
			Lat: c.Lat + (r.Float64()-0.5)*0.10,
			Lng: c.Lng + (r.Float64()-0.5)*0.10,
		})
	}
	for len(points) < count {
		points = append(points, Point{Lat: 55 + r.Float64()*(66-55), Lng: 11 + r.Float64()*(24-11)})
	}
	return points
}

func loadCentroidsCSV(path string) ([]Point, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open centroids: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readCentroids(f)
}

func readCentroids(rd io.Reader) ([]Point, error) {
	r := csv.NewReader(rd)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := map[string]int{}
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lonIdx, okLon := colIdx["lon"]
	latIdx, okLat := colIdx["lat"]
	if !okLon || !okLat {
		return nil, fmt.Errorf("centroid csv: expected columns lon,lat; got %v", header)
	}

	var out []Point
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		lonStr := strings.TrimSpace(rec[lonIdx])
		latStr := strings.TrimSpace(rec[latIdx])
		if lonStr == "" || latStr == "" {
			continue
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parse lon %q: %w", lonStr, err)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parse lat %q: %w", latStr, err)
		}
		out = append(out, Point{Lat: lat, Lng: lon})
	}
	return out, nil
}

func searchURL(base string, p Point, industry string, radiusM float64, seq int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(p.Lng, 'f', 6, 64))
	q.Set("industry", industry)
	if radiusM > 0 {
		q.Set("radius", strconv.FormatFloat(radiusM, 'f', -1, 64))
	}
	q.Set("seq", strconv.FormatInt(seq, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// one sample per request
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	PointIdx  int
	Industry  string
	Results   int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Points        int       `json:"points"`
	TargetURL     string    `json:"target"`
	Industries    []string  `json:"industries"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	zl := logger.Build(logger.Config{Level: "info", Console: true, Component: "loadgen"}, os.Stderr)
	log := logger.NewSlog(&zl)
	if err := run(cfg, log); err != nil {
		log.Error("loadgen failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, log *slog.Logger) error {
	if len(cfg.Industries) == 0 {
		return errors.New("no industries given")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		return fmt.Errorf("mkdir results: %w", err)
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		switch strings.ToLower(cfg.TimestampFormat) {
		case "none":
		case "unix":
			prefix = fmt.Sprintf("%s_%d", prefix, time.Now().Unix())
		default: // "iso"
			prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
		}
	}

	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	var points []Point
	if strings.TrimSpace(cfg.CentroidFile) != "" {
		centroids, err := loadCentroidsCSV(cfg.CentroidFile)
		if err != nil {
			log.Warn("failed to load centroids; falling back to synthetic centres", "file", cfg.CentroidFile, "err", err)
		} else {
			points = centroids
			if len(points) > cfg.PointCount && cfg.PointCount > 0 {
				points = points[:cfg.PointCount]
			}
		}
	}
	if len(points) == 0 {
		points = makePoints(cfg.PointCount, r)
	}
	if len(points) == 0 {
		return errors.New("no search centres generated")
	}
	imax := uint64(len(points)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          256,
			MaxIdleConnsPerHost:   64,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "point_idx", "industry", "results"})
		var agg aggregatedResult
		for s := range samplesChan {
			agg.total++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				agg.success++
				agg.latMs = append(agg.latMs, float64(s.Latency.Microseconds())/1000.0)
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				strconv.Itoa(s.PointIdx),
				s.Industry,
				strconv.Itoa(s.Results),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Warn("csv flush error", "err", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Info("loadgen start",
		"target", cfg.TargetURL, "duration", cfg.Duration, "concurrency", cfg.Concurrency,
		"zipf_s", cfg.ZipfS, "zipf_v", cfg.ZipfV, "points", len(points))

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			var seq int64
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v >= uint64(len(points)) {
					continue
				}
				idx := int(v)
				industry := cfg.Industries[rWorker.Intn(len(cfg.Industries))]
				seq++
				target, err := searchURL(cfg.TargetURL, points[idx].jittered(rWorker, cfg.JitterM), industry, cfg.RadiusM, seq)
				if err != nil {
					log.Error("bad target", "err", err)
					return
				}

				res := sample{Timestamp: time.Now(), PointIdx: idx, Industry: industry}
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				res.Latency = time.Since(res.Timestamp)
				if err != nil {
					res.ErrorMsg = err.Error()
				} else {
					res.Status = resp.StatusCode
					var recs []json.RawMessage
					if resp.StatusCode >= 200 && resp.StatusCode < 300 {
						if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
							res.ErrorMsg = "decode: " + err.Error()
						}
						res.Results = len(recs)
					} else {
						res.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}

				select {
				case samplesChan <- res:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Points:        len(points),
		TargetURL:     cfg.TargetURL,
		Industries:    cfg.Industries,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err != nil {
		return fmt.Errorf("open summary: %w", err)
	}
	enc := json.NewEncoder(jsonFile)
	enc.SetIndent("", "  ")
	// NaN percentiles (no successes) are not valid JSON
	if agg.success == 0 {
		runSummary.P50Ms, runSummary.P95Ms, runSummary.P99Ms = 0, 0, 0
	}
	_ = enc.Encode(runSummary)
	_ = jsonFile.Close()

	log.Info("done",
		"total", agg.total, "success", agg.success, "errors", agg.errors,
		"rps", runSummary.ThroughputRPS, "p50_ms", runSummary.P50Ms, "p95_ms", runSummary.P95Ms, "p99_ms", runSummary.P99Ms,
		"summary", jsonPath, "samples", csvPath)
	return nil
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
