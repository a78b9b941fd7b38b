// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	h3 "github.com/uber/h3-go/v4"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both values are finite and inside WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DistanceKM great-circle distance to o in kilometres
func (c Coordinate) DistanceKM(o Coordinate) float64 {
	return h3.GreatCircleDistanceKm(
		h3.LatLng{Lat: c.Lat, Lng: c.Lng},
		h3.LatLng{Lat: o.Lat, Lng: o.Lng},
	)
}

// String "lat,lng" with shortest round-trip formatting
func (c Coordinate) String() string {
	return FormatNumber(c.Lat) + "," + FormatNumber(c.Lng)
}

func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SortDistance orders results nearest first; the default keeps upstream order.
const SortDistance = "distance"

// SearchRequest is a validated /search call.
type SearchRequest struct {
	Center   Coordinate
	Industry string
	RadiusM  float64
	SortBy   string
	Seq      string
}

type BusinessRecord struct {
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Address      string  `json:"address"`
	Type         string  `json:"type"`
	Website      string  `json:"website"`
	Phone        string  `json:"phone"`
	OpeningHours string  `json:"opening_hours"`
	DistanceKM   float64 `json:"distance_km"`
}

// Key returns the name-lat-lng identity used for deduplication.
func (b BusinessRecord) Key() string {
	return b.Name + "-" + FormatNumber(b.Lat) + "-" + FormatNumber(b.Lng)
}

// RawElement is one entry of an Overpass "elements" array. Coordinates are kept
// raw because upstream data may carry them as strings, nulls or garbage.
type RawElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  json.RawMessage   `json:"lat,omitempty"`
	Lon  json.RawMessage   `json:"lon,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Tag returns the tag value as published, or "" when it is absent or blank.
func (e RawElement) Tag(k string) string {
	v := e.Tags[k]
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// Coordinate decodes lat/lon; ok is false when either is absent or non-numeric.
func (e RawElement) Coordinate() (Coordinate, bool) {
	lat, ok := parseRawNumber(e.Lat)
	if !ok {
		return Coordinate{}, false
	}
	lng, ok := parseRawNumber(e.Lon)
	if !ok {
		return Coordinate{}, false
	}
	return Coordinate{Lat: lat, Lng: lng}, true
}

func parseRawNumber(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	// numeric strings are accepted, anything else quoted is not
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type Cells []string

// BBox is an EPSG:4326 box; X is longitude, Y is latitude.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

type Polygon struct {
	GeoJSON string
}
