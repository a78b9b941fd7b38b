package h3mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

// average hexagon edge length in metres, by resolution
var edgeLengthM = [16]float64{
	1281256.011, 483056.8391, 182512.9565, 68979.22179,
	26071.75968, 9854.090990, 3724.532667, 1406.475763,
	531.414010, 200.786148, 75.863783, 28.663897,
	10.830188, 4.092010, 1.546100, 0.584169,
}

const metresPerDegree = 111320.0

// EdgeLengthM returns the average edge length at res, 0 for invalid res.
func EdgeLengthM(res int) float64 {
	if validateRes(res) != nil {
		return 0
	}
	return edgeLengthM[res]
}

func (m *Mapper) CellForPoint(c model.Coordinate, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if !c.Valid() {
		return "", fmt.Errorf("invalid coordinate %s", c)
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lng}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return cell.String(), nil
}

func (m *Mapper) CellCenter(cell string) (model.Coordinate, error) {
	c, err := parseCell(cell)
	if err != nil {
		return model.Coordinate{}, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("h3 center: %w", err)
	}
	return model.Coordinate{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// RingsFor returns how many grid rings around a cell at res are needed to
// cover every point within radiusM of anywhere in that cell.
func RingsFor(radiusM float64, res int) int {
	edge := EdgeLengthM(res)
	if edge <= 0 || radiusM <= 0 {
		return 1
	}
	// neighbouring centres are sqrt(3)*edge apart; one extra ring for the
	// part of the origin cell away from its centre
	return int(math.Ceil(radiusM/(math.Sqrt(3)*edge))) + 1
}

// Disk returns cell and all cells within k rings, sorted.
func (m *Mapper) Disk(cell string, k int) (model.Cells, error) {
	c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	if k < 0 {
		k = 0
	}
	disk, err := h3.GridDisk(c, k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk: %w", err)
	}
	out := make([]string, 0, len(disk))
	for _, d := range disk {
		out = append(out, d.String())
	}
	sort.Strings(out)
	return out, nil
}

// CellsCoveringBBox returns every cell at res that intersects bb. The box is
// widened by one edge length so cells whose centre lies just outside it are
// included too.
func (m *Mapper) CellsCoveringBBox(bb model.BBox, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	pad := EdgeLengthM(res) * 1.1
	midLat := (bb.Y1 + bb.Y2) / 2
	dLat := pad / metresPerDegree
	dLng := 180.0
	if cos := math.Cos(midLat * math.Pi / 180); cos > 1e-6 {
		dLng = math.Min(pad/(metresPerDegree*cos), 180)
	}
	grown := model.BBox{
		X1:   math.Max(bb.X1-dLng, -180),
		Y1:   math.Max(bb.Y1-dLat, -90),
		X2:   math.Min(bb.X2+dLng, 180),
		Y2:   math.Min(bb.Y2+dLat, 90),
		SRID: bb.SRID,
	}
	cells, err := m.CellsForBBox(grown, res)
	if err != nil {
		return nil, err
	}

	// tiny boxes can still miss every centre at coarse res
	seen := make(map[string]struct{}, len(cells)+1)
	for _, c := range cells {
		seen[c] = struct{}{}
	}
	mid := model.Coordinate{Lat: midLat, Lng: (bb.X1 + bb.X2) / 2}
	if c, err := m.CellForPoint(mid, res); err == nil {
		if _, ok := seen[c]; !ok {
			cells = append(cells, c)
			sort.Strings(cells)
		}
	}
	return cells, nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

// CellsCoveringPolygon returns the filled cells of a GeoJSON Polygon or
// MultiPolygon plus the cells holding its vertices, grown by one ring so that
// cells crossed only by an edge are covered as well.
func (m *Mapper) CellsCoveringPolygon(poly model.Polygon, res int) (model.Cells, error) {
	filled, err := m.CellsForPolygon(poly, res)
	if err != nil {
		return nil, err
	}
	verts, err := polygonVertices(poly.GeoJSON)
	if err != nil {
		return nil, err
	}

	base := make(map[string]struct{}, len(filled)+len(verts))
	for _, c := range filled {
		base[c] = struct{}{}
	}
	for _, v := range verts {
		c, err := m.CellForPoint(v, res)
		if err != nil {
			return nil, err
		}
		base[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(base)*7)
	for c := range base {
		ring, err := m.Disk(c, 1)
		if err != nil {
			return nil, err
		}
		for _, n := range ring {
			seen[n] = struct{}{}
		}
	}
	out := make(model.Cells, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func polygonVertices(geojson string) ([]model.Coordinate, error) {
	var hdr struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal([]byte(geojson), &hdr); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	var rings [][][]float64
	switch hdr.Type {
	case "Polygon":
		if err := json.Unmarshal(hdr.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("parse polygon coords: %w", err)
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(hdr.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("parse multipolygon coords: %w", err)
		}
		for _, p := range polys {
			rings = append(rings, p...)
		}
	default:
		return nil, fmt.Errorf("unsupported GeoJSON type: %s", hdr.Type)
	}

	var out []model.Coordinate
	for _, ring := range rings {
		for _, xy := range ring {
			if len(xy) != 2 {
				continue
			}
			out = append(out, model.Coordinate{Lat: xy[1], Lng: xy[0]})
		}
	}
	return out, nil
}
