package overpass

import (
	"strings"
	"unicode"
)

const regexMeta = `\.+*?()[]{}|^$`

// EscapeRegex makes s match literally inside an Overpass (POSIX ERE) pattern.
func EscapeRegex(s string) string {
	if !strings.ContainsAny(s, regexMeta) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(regexMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeString prepares s for a double-quoted QL literal. Control characters are
// dropped since the interpreter rejects raw newlines inside strings.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch {
		case r == '\\' || r == '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
