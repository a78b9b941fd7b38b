package baseline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

type fakeExec struct {
	calls  int
	lastQL string
	elems  []model.RawElement
	err    error
}

func (f *fakeExec) FetchElements(_ context.Context, ql string) ([]model.RawElement, error) {
	f.calls++
	f.lastQL = ql
	return f.elems, f.err
}

func TestBaseline_EverySearchHitsUpstream(t *testing.T) {
	cfg := config.FromEnv()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx := &fakeExec{elems: []model.RawElement{{
		Type: "node", Lat: []byte("59.33"), Lon: []byte("18.06"),
		Tags: map[string]string{"name": "Espresso House", "amenity": "cafe"},
	}}}

	s, err := newBaseline(cfg, logger, fx)
	if err != nil {
		t.Fatalf("newBaseline: %v", err)
	}
	req := model.SearchRequest{
		Center:   model.Coordinate{Lat: 59.3293, Lng: 18.0686},
		Industry: "cafe",
		RadiusM:  1000,
	}
	for range 2 {
		recs, err := s.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(recs) != 1 || recs[0].Name != "Espresso House" {
			t.Fatalf("unexpected records: %+v", recs)
		}
	}
	if fx.calls != 2 {
		t.Fatalf("upstream calls=%d want 2", fx.calls)
	}
	// the requester's own coordinate is used, not a snapped one
	if !strings.Contains(fx.lastQL, "(around:1000,59.3293,18.0686)") {
		t.Fatalf("unexpected around filter:\n%s", fx.lastQL)
	}
}

func TestBaseline_PropagatesUpstreamError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, _ := newBaseline(config.Config{}, logger, &fakeExec{err: errors.New("503")})

	recs, err := s.Search(context.Background(), model.SearchRequest{
		Center: model.Coordinate{Lat: 1, Lng: 1}, Industry: "tech", RadiusM: 10,
	})
	if err == nil || recs != nil {
		t.Fatalf("expected error and nil records, got %v %v", recs, err)
	}
}
