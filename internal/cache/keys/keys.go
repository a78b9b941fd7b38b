package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	searchPrefix = "search"
	indexPrefix  = "idx"
)

// SearchKey identifies one cached upstream search: the snapped cell at res,
// the radius and the industry. The readable industry segment is truncated
// and sanitized; the xxhash suffix keeps distinct inputs distinct.
func SearchKey(res int, cell string, radiusM float64, industry string) string {
	ind := collapseASCIIWhitespace(strings.ToLower(strings.TrimSpace(industry)))
	safe := sanitizeForKey(ind)

	const maxIndustryLen = 64
	if len(safe) > maxIndustryLen {
		safe = safe[:maxIndustryLen]
	}

	rad := strconv.FormatFloat(radiusM, 'f', -1, 64)
	sum := xxhash.Sum64String(rad + "|" + ind)

	return fmt.Sprintf("%s:%d:%s:r=%s:i=%s:h=%016x", searchPrefix, res, cell, rad, safe, sum)
}

// CellIndexKey names the set listing every search key that covers cell.
func CellIndexKey(res int, cell string) string {
	return fmt.Sprintf("%s:%d:%s", indexPrefix, res, strings.TrimSpace(cell))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
