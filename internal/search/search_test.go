package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

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

func node(name string, lat, lng string) model.RawElement {
	return model.RawElement{
		Type: "node",
		Lat:  []byte(lat),
		Lon:  []byte(lng),
		Tags: map[string]string{"name": name, "amenity": "cafe"},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSearch_CafeScenario(t *testing.T) {
	fx := &fakeExec{elems: []model.RawElement{
		node("Blue Bottle", "40.7130", "-74.0060"),
		node("Blue Bottle", "40.7130", "-74.0060"),
		node("Joe", "40.7200", "-74.0100"),
	}}
	svc := NewService(discard(), fx, 25*time.Second)

	got, err := svc.Search(context.Background(), model.SearchRequest{
		Center:   model.Coordinate{Lat: 40.7128, Lng: -74.006},
		Industry: "Cafe",
		RadiusM:  5000,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if fx.calls != 1 {
		t.Fatalf("upstream calls=%d want 1", fx.calls)
	}
	for _, term := range []string{"cafe", "coffee_shop", "coffee"} {
		if !strings.Contains(fx.lastQL, `"`+term+`",i]`) {
			t.Fatalf("query missing term %q:\n%s", term, fx.lastQL)
		}
	}
	if !strings.Contains(fx.lastQL, "(around:5000,40.7128,-74.006)") {
		t.Fatalf("query missing around filter:\n%s", fx.lastQL)
	}
	if len(got) != 2 || got[0].Name != "Blue Bottle" || got[1].Name != "Joe" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if got[0].Type != "cafe" || got[0].Address != "No address available" {
		t.Fatalf("unexpected mapping: %+v", got[0])
	}
	if got[0].DistanceKM <= 0 {
		t.Fatalf("distance not filled: %+v", got[0])
	}
}

func TestSearch_UpstreamFailureReturnsNothing(t *testing.T) {
	fx := &fakeExec{err: errors.New("boom"), elems: []model.RawElement{node("x", "1", "1")}}
	svc := NewService(discard(), fx, 0)

	got, err := svc.Search(context.Background(), model.SearchRequest{
		Center: model.Coordinate{Lat: 1, Lng: 1}, Industry: "tech", RadiusM: 100,
	})
	if err == nil || got != nil {
		t.Fatalf("expected error and no records, got %v / %v", got, err)
	}
}

func TestSearch_InvalidCenterSkipsUpstream(t *testing.T) {
	fx := &fakeExec{}
	svc := NewService(discard(), fx, 0)
	if _, err := svc.Search(context.Background(), model.SearchRequest{
		Center: model.Coordinate{Lat: 91, Lng: 0}, Industry: "tech", RadiusM: 100,
	}); err == nil {
		t.Fatal("expected build error")
	}
	if fx.calls != 0 {
		t.Fatalf("upstream must not be called, calls=%d", fx.calls)
	}
}

func TestPresent_SortsCopy(t *testing.T) {
	recs := []model.BusinessRecord{
		{Name: "far", Lat: 1.0, Lng: 1.0},
		{Name: "near", Lat: 0.001, Lng: 0.001},
	}
	out := Present(recs, model.SearchRequest{Center: model.Coordinate{}, SortBy: model.SortDistance})
	if out[0].Name != "near" || out[1].Name != "far" {
		t.Fatalf("not sorted: %+v", out)
	}
	if recs[0].Name != "far" || recs[0].DistanceKM != 0 {
		t.Fatalf("input mutated: %+v", recs)
	}
}

func TestWithin_DropsRecordsBeyondRadius(t *testing.T) {
	recs := []model.BusinessRecord{
		{Name: "in", DistanceKM: 0.099},
		{Name: "edge", DistanceKM: 0.0999},
		{Name: "out", DistanceKM: 0.367},
		{Name: "here", DistanceKM: 0},
	}
	got := Within(recs, 100)
	if len(got) != 3 || got[0].Name != "in" || got[1].Name != "edge" || got[2].Name != "here" {
		t.Fatalf("got %+v", got)
	}
}
