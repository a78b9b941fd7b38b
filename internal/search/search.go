// Package search runs one nearby-business lookup: translate the industry,
// render the Overpass query, fetch and normalize.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/executor"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	"github.com/mohammed-shakir/nearby-business-search/internal/normalize"
)

type Service struct {
	logger   *slog.Logger
	exec     executor.Interface
	timeoutS int
}

func NewService(logger *slog.Logger, exec executor.Interface, queryTimeout time.Duration) *Service {
	t := int(queryTimeout / time.Second)
	if t <= 0 {
		t = overpass.DefaultTimeoutS
	}
	return &Service{logger: logger, exec: exec, timeoutS: t}
}

// Fetch issues exactly one upstream request for center/radius/industry and
// returns the deduplicated records in first-seen order. On any failure no
// records are returned.
func (s *Service) Fetch(ctx context.Context, center model.Coordinate, radiusM float64, industry string) ([]model.BusinessRecord, error) {
	terms := overpass.Translate(industry)
	ql, err := overpass.Build(overpass.Query{
		Center:   center,
		RadiusM:  radiusM,
		Terms:    terms,
		TimeoutS: s.timeoutS,
	})
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	elems, err := s.exec.FetchElements(ctx, ql)
	if err != nil {
		return nil, fmt.Errorf("fetch elements: %w", err)
	}

	recs := normalize.Records(elems, industry)
	observability.ObserveSearch(overpass.Known(industry), len(elems), len(recs))
	s.logger.DebugContext(ctx, "search fetched",
		"industry", overpass.NormalizeIndustry(industry),
		"terms", len(terms),
		"elements", len(elems),
		"records", len(recs))
	return recs, nil
}

// Search is the uncached path used by the baseline scenario.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) ([]model.BusinessRecord, error) {
	recs, err := s.Fetch(ctx, req.Center, req.RadiusM, req.Industry)
	if err != nil {
		return nil, err
	}
	return Present(recs, req), nil
}

// Present returns a copy of recs annotated with the distance from the
// requester, ordered by distance when asked to.
func Present(recs []model.BusinessRecord, req model.SearchRequest) []model.BusinessRecord {
	out := make([]model.BusinessRecord, len(recs))
	copy(out, recs)
	normalize.WithDistance(out, req.Center)
	if req.SortBy == model.SortDistance {
		normalize.SortByDistance(out)
	}
	return out
}

// Within keeps the records of recs no further than radiusM from the point
// their DistanceKM was measured from. recs is filtered in place.
func Within(recs []model.BusinessRecord, radiusM float64) []model.BusinessRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.DistanceKM*1000 <= radiusM {
			out = append(out, r)
		}
	}
	return out
}
