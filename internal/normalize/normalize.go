// Package normalize shapes raw Overpass elements into deduplicated business records.
package normalize

import (
	"strings"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

const NoAddress = "No address available"

// address tags in output order
var addressTags = []string{
	"addr:housenumber",
	"addr:street",
	"addr:suburb",
	"addr:city",
	"addr:postcode",
}

var typeTags = []string{"office", "shop", "amenity", "company"}

// Records filters, maps and deduplicates elems. Elements without a name or with a
// missing or out of range coordinate are skipped. Duplicates (same name and
// coordinate) keep the last seen values at the position of the first occurrence.
func Records(elems []model.RawElement, industry string) []model.BusinessRecord {
	out := make([]model.BusinessRecord, 0, len(elems))
	index := make(map[string]int, len(elems))
	for _, el := range elems {
		rec, ok := Record(el, industry)
		if !ok {
			continue
		}
		k := rec.Key()
		if i, dup := index[k]; dup {
			out[i] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// Record maps one element; ok is false when the element must be excluded.
func Record(el model.RawElement, industry string) (model.BusinessRecord, bool) {
	name := el.Tag("name")
	if name == "" {
		return model.BusinessRecord{}, false
	}
	c, ok := el.Coordinate()
	if !ok || !c.Valid() {
		return model.BusinessRecord{}, false
	}

	typ := firstTag(el, typeTags...)
	if typ == "" {
		typ = strings.ToLower(strings.TrimSpace(industry))
	}

	return model.BusinessRecord{
		Name:         name,
		Lat:          c.Lat,
		Lng:          c.Lng,
		Address:      Address(el),
		Type:         typ,
		Website:      firstTag(el, "website", "contact:website"),
		Phone:        firstTag(el, "phone", "contact:phone"),
		OpeningHours: el.Tag("opening_hours"),
	}, true
}

// Address joins the structured addr:* parts, falling back to addr:full.
func Address(el model.RawElement) string {
	parts := make([]string, 0, len(addressTags))
	for _, k := range addressTags {
		if v := el.Tag(k); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if full := el.Tag("addr:full"); full != "" {
		return full
	}
	return NoAddress
}

func firstTag(el model.RawElement, keys ...string) string {
	for _, k := range keys {
		if v := el.Tag(k); v != "" {
			return v
		}
	}
	return ""
}
