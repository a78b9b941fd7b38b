package normalize

import (
	"sort"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

// WithDistance fills DistanceKM relative to origin, in place.
func WithDistance(recs []model.BusinessRecord, origin model.Coordinate) {
	for i := range recs {
		recs[i].DistanceKM = origin.DistanceKM(model.Coordinate{Lat: recs[i].Lat, Lng: recs[i].Lng})
	}
}

// SortByDistance orders by DistanceKM, ties keep their existing order.
func SortByDistance(recs []model.BusinessRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].DistanceKM < recs[j].DistanceKM
	})
}
