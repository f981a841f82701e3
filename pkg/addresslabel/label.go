// Package addresslabel builds and compares the canonical address labels that
// key collections and fee lookups.
package addresslabel

import (
	"strings"
	"unicode"
)

// Format renders the canonical display label for an address:
// "<street>, <number> - <city>". Missing components collapse cleanly, and an
// address with no usable components yields "".
func Format(street, number, city string) string {
	street = strings.TrimSpace(street)
	number = strings.TrimSpace(number)
	city = strings.TrimSpace(city)

	var b strings.Builder
	b.WriteString(street)

	if number != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(number)
	}

	if city != "" {
		if b.Len() > 0 {
			b.WriteString(" - ")
		}
		b.WriteString(city)
	}

	return b.String()
}

// Normalize lowers the label, strips punctuation and collapses runs of
// whitespace, so "Rua A, 123 - Santos" and "rua a 123 santos" compare equal.
// Used for the fuzzy tier of fee matching.
func Normalize(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	space := false
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}

	return b.String()
}

// Matches reports whether two labels refer to the same address after
// normalization.
func Matches(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
