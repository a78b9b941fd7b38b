// Package mapper converts between geometric coordinates and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

type Interface interface {
	CellForPoint(c model.Coordinate, res int) (string, error)
	CellCenter(cell string) (model.Coordinate, error)
	ToParent(cell string, parentRes int) (string, error)
	Disk(cell string, k int) (model.Cells, error)
	CellsCoveringBBox(bb model.BBox, res int) (model.Cells, error)
	CellsForPolygon(poly model.Polygon, res int) (model.Cells, error)
	CellsCoveringPolygon(poly model.Polygon, res int) (model.Cells, error)
}
