// Package executor issues Overpass interpreter requests and decodes their elements.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
)

var (
	ErrUpstreamStatus = errors.New("overpass: unexpected status")
	ErrUpstreamBody   = errors.New("overpass: malformed response")
)

const maxBodyBytes = 64 << 20

type Interface interface {
	FetchElements(ctx context.Context, ql string) ([]model.RawElement, error)
}

type Options struct {
	// RPS <= 0 disables throttling.
	RPS   float64
	Burst int
}

type Executor struct {
	logger    *slog.Logger
	client    *http.Client
	endpoint  *url.URL
	limiter   *rate.Limiter
	startNow  func() time.Time // for tests
	userAgent string
}

func New(logger *slog.Logger, client *http.Client, endpoint string, opts Options) (*Executor, error) {
	u, err := url.Parse(overpass.InterpreterEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse overpass url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported overpass url scheme %q", u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Executor{
		logger:    logger,
		client:    client,
		endpoint:  u,
		limiter:   lim,
		startNow:  time.Now,
		userAgent: "nearby-business-search/1.0",
	}, nil
}

// Endpoint returns the resolved interpreter URL.
func (e *Executor) Endpoint() string { return e.endpoint.String() }

type interpreterResponse struct {
	Elements []model.RawElement `json:"elements"`
	Remark   string             `json:"remark,omitempty"`
}

// FetchElements runs one query. Every failure (throttle wait cancelled, transport,
// non-2xx, undecodable body, runtime error remark) is returned as an error and
// no elements are returned alongside it.
func (e *Executor) FetchElements(ctx context.Context, ql string) ([]model.RawElement, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		observability.IncUpstreamError("overpass", "throttle")
		return nil, fmt.Errorf("overpass throttle: %w", err)
	}

	u := *e.endpoint
	u.RawQuery = overpass.Params(ql).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.userAgent)

	start := e.startNow()
	resp, err := e.client.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency("overpass", dur.Seconds())
	if err != nil {
		observability.IncUpstreamError("overpass", "transport")
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.IncUpstreamError("overpass", "status")
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w %d: %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out interpreterResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		observability.IncUpstreamError("overpass", "decode")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamBody, err)
	}
	// the interpreter reports timeouts and memory exhaustion with 200 + remark
	if strings.Contains(strings.ToLower(out.Remark), "error") {
		observability.IncUpstreamError("overpass", "remark")
		return nil, fmt.Errorf("%w: remark %q", ErrUpstreamBody, out.Remark)
	}

	e.logger.DebugContext(ctx, "overpass fetch done",
		"status", resp.StatusCode,
		"elements", len(out.Elements),
		"duration", dur.String())
	return out.Elements, nil
}
