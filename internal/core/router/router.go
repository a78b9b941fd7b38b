package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/config"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/observability"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/overpass"
	mylog "github.com/mohammed-shakir/nearby-business-search/internal/logger"
)

const (
	msgMissingParams = "Missing parameters"
	msgInvalidCoords = "Invalid coordinates"
	msgFetchFailed   = "Failed to fetch companies"

	// SeqHeader echoes the client's seq token so it can drop stale responses.
	SeqHeader = "X-Search-Seq"
)

var (
	ErrMissingParams      = errors.New("missing parameters")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// serves validated searches
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest) ([]model.BusinessRecord, error)
}

// validates input query params and calls the searcher
func HandleSearch(logger *slog.Logger, cfg config.Config, s Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/search", sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseSearchRequest(r.URL.Query(), cfg.SearchRadiusM)
		if req.Seq != "" {
			sw.Header().Set(SeqHeader, req.Seq)
		}
		switch {
		case errors.Is(err, ErrMissingParams):
			writeError(sw, http.StatusBadRequest, msgMissingParams)
			return
		case err != nil:
			writeError(sw, http.StatusBadRequest, msgInvalidCoords)
			return
		}

		ctx := mylog.WithIndustry(r.Context(), overpass.NormalizeIndustry(req.Industry))
		recs, err := s.Search(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "search failed", "err", err, "center", req.Center.String())
			writeError(sw, http.StatusInternalServerError, msgFetchFailed)
			return
		}
		if recs == nil {
			recs = []model.BusinessRecord{}
		}
		writeJSON(sw, http.StatusOK, recs)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseSearchRequest reads lat, lng, industry and the optional radius, sort
// and seq parameters. A blank required parameter is ErrMissingParams; an
// unparsable or out of range coordinate is ErrInvalidCoordinates.
func ParseSearchRequest(v url.Values, defaultRadiusM float64) (model.SearchRequest, error) {
	rawLat := strings.TrimSpace(v.Get("lat"))
	rawLng := strings.TrimSpace(v.Get("lng"))
	industry := strings.TrimSpace(v.Get("industry"))

	req := model.SearchRequest{Seq: strings.TrimSpace(v.Get("seq"))}
	if rawLat == "" || rawLng == "" || industry == "" {
		return req, ErrMissingParams
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return req, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return req, ErrInvalidCoordinates
	}
	center := model.Coordinate{Lat: lat, Lng: lng}
	if !center.Valid() {
		return req, ErrInvalidCoordinates
	}

	req.Center = center
	req.Industry = industry
	req.RadiusM = parseRadius(v.Get("radius"), defaultRadiusM)
	if strings.EqualFold(strings.TrimSpace(v.Get("sort")), model.SortDistance) {
		req.SortBy = model.SortDistance
	}
	return req, nil
}

func parseRadius(raw string, def float64) float64 {
	if def <= 0 {
		def = overpass.DefaultRadiusM
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return math.Min(math.Max(f, 1), overpass.MaxRadiusM)
}

// HandleIndustries lists the known industry keys with their search terms.
func HandleIndustries() http.HandlerFunc {
	type industry struct {
		Name  string   `json:"name"`
		Terms []string `json:"terms"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		keys := overpass.Industries()
		out := make([]industry, 0, len(keys))
		for _, k := range keys {
			out = append(out, industry{Name: k, Terms: overpass.Translate(k)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// MapZoom is the initial zoom the map widget opens with.
const MapZoom = 14

// HandleMapConfig hands the map widget its tile style. The API key stays
// server-side until a client asks for it.
func HandleMapConfig(cfg config.Config) http.HandlerFunc {
	type mapConfig struct {
		StyleURL string `json:"style_url"`
		Zoom     int    `json:"zoom"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		style := cfg.MapStyleURL
		if cfg.MapTilerKey != "" {
			if u, err := url.Parse(style); err == nil {
				q := u.Query()
				q.Set("key", cfg.MapTilerKey)
				u.RawQuery = q.Encode()
				style = u.String()
			}
		}
		writeJSON(w, http.StatusOK, mapConfig{StyleURL: style, Zoom: MapZoom})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
