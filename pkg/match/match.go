// Package match holds the string normalization and token comparison helpers
// used by duplicate detection.
package match

import (
	"strings"
)

// Normalize lower-cases and collapses whitespace for comparison.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EqualFold reports whether two strings are equal after normalization.
func EqualFold(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// NamesSwapped reports whether two full names consist of the same first/last
// token pair in either order ("John Smith" vs "Smith John"). Single-token or
// empty names never match.
func NamesSwapped(a, b string) bool {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) != 2 || len(tb) != 2 {
		return false
	}
	if ta[0] == tb[0] && ta[1] == tb[1] {
		return true
	}
	return ta[0] == tb[1] && ta[1] == tb[0]
}

// SplitFullName splits a display name into given and family parts. Everything
// after the first token is treated as the family name.
func SplitFullName(full string) (given, family string) {
	parts := strings.Fields(strings.TrimSpace(full))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
