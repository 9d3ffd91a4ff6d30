package models

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// platePattern is the canonical plate form after normalization.
var platePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// NormalizePlate folds full-width characters, drops separators and
// whitespace, and upper-cases the result. It does not validate.
func NormalizePlate(raw string) string {
	folded := width.Fold.String(raw)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '_', r == '/':
			continue
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IsCanonicalPlate reports whether p is already in canonical form.
func IsCanonicalPlate(p string) bool {
	return platePattern.MatchString(p)
}
