package overpass

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

const (
	DefaultRadiusM  = 5000
	DefaultTimeoutS = 25
	MaxRadiusM      = 50000
)

var ErrInvalidQuery = errors.New("invalid overpass query")

// Query holds everything needed to render one Overpass QL request.
type Query struct {
	Center   model.Coordinate
	RadiusM  float64
	Terms    []string
	TimeoutS int
}

// catch-all clauses appended regardless of the terms
var genericSelectors = []string{
	`node["office"="it"]`,
	`node["office"="company"]`,
	`node["amenity"="office"]`,
}

func InterpreterEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/api/interpreter") {
		return base
	}
	if strings.HasSuffix(base, "/api") {
		return base + "/interpreter"
	}
	return base + "/api/interpreter"
}

// Build renders q as Overpass QL. Terms are escaped for both the regex and the
// quoted-string layer, so arbitrary user text cannot break out of its clause.
func Build(q Query) (string, error) {
	if !q.Center.Valid() {
		return "", fmt.Errorf("%w: center %s out of range", ErrInvalidQuery, q.Center)
	}
	if !(q.RadiusM > 0) {
		return "", fmt.Errorf("%w: radius must be positive", ErrInvalidQuery)
	}
	if len(q.Terms) == 0 {
		return "", fmt.Errorf("%w: no search terms", ErrInvalidQuery)
	}
	timeout := q.TimeoutS
	if timeout <= 0 {
		timeout = DefaultTimeoutS
	}

	around := fmt.Sprintf("(around:%s,%s,%s)",
		model.FormatNumber(q.RadiusM),
		model.FormatNumber(q.Center.Lat),
		model.FormatNumber(q.Center.Lng))

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeout)
	written := 0
	for _, raw := range q.Terms {
		term := EscapeString(EscapeRegex(raw))
		if term == "" {
			continue
		}
		written++
		fmt.Fprintf(&b, "  node[\"name\"]%s[~\".\"~\".\",i][~\"name|brand|operator\"~\"%s\",i];\n", around, term)
		fmt.Fprintf(&b, "  node%s[~\"office|company|shop|amenity\"~\"%s\",i];\n", around, term)
		fmt.Fprintf(&b, "  way[\"name\"]%s[~\"office|company|shop|amenity\"~\"%s\",i];\n", around, term)
		fmt.Fprintf(&b, "  relation[\"name\"]%s[~\"office|company|shop|amenity\"~\"%s\",i];\n", around, term)
	}
	if written == 0 {
		return "", fmt.Errorf("%w: no usable search terms", ErrInvalidQuery)
	}
	for _, sel := range genericSelectors {
		fmt.Fprintf(&b, "  %s%s;\n", sel, around)
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return b.String(), nil
}

// Params encodes the query as the interpreter's "data" parameter.
func Params(ql string) url.Values {
	v := url.Values{}
	v.Set("data", ql)
	return v
}
