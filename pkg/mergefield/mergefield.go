// Package mergefield decides which of two field values survives a contact
// merge. Resolution is pure, idempotent and keeps the existing value on ties,
// so replaying the same update is always a no-op.
package mergefield

import (
	"strings"
	"unicode"
)

// Kind tags the merge policy to apply to a field.
type Kind int

const (
	KindName Kind = iota
	KindCompany
	KindTitle
	KindPhone
)

var legalEntityMarkers = []string{"inc", "ltd", "gmbh", "a/s", "aps", "llc", "corp", "s.a.", "b.v."}

var seniorityMarkers = []string{
	"senior", "lead", "chief", "head", "director", "vp",
	"president", "ceo", "cto", "cfo",
}

var extensionMarkers = []string{"ext", "extension", "#"}

// Resolve returns the superior value for a field of the given kind.
// Empty incoming never wins; empty existing always loses to a non-empty
// incoming value.
func Resolve(existing, incoming string, kind Kind) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)

	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if strings.EqualFold(existing, incoming) {
		return existing
	}

	switch kind {
	case KindName:
		return resolveName(existing, incoming)
	case KindCompany:
		return resolveCompany(existing, incoming)
	case KindTitle:
		return resolveTitle(existing, incoming)
	case KindPhone:
		return resolvePhone(existing, incoming)
	}
	return existing
}

// ResolveNameFromSplit applies the name policy for values obtained by
// splitting a combined full-name string. A split-derived value may only
// replace the existing one when it carries at least as many words, which
// keeps "John" (split from "John") from clobbering "John Smith".
func ResolveNameFromSplit(existing, incoming string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)

	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if wordCount(incoming) < wordCount(existing) {
		return existing
	}
	return resolveName(existing, incoming)
}

func resolveName(existing, incoming string) string {
	if len(incoming) > len(existing) {
		return incoming
	}
	return existing
}

func resolveCompany(existing, incoming string) string {
	existingLegal := containsAnyFold(existing, legalEntityMarkers)
	incomingLegal := containsAnyFold(incoming, legalEntityMarkers)

	if incomingLegal && !existingLegal {
		return incoming
	}
	if existingLegal && !incomingLegal {
		return existing
	}

	// Guard against trivial truncations winning.
	if len(incoming) >= len(existing)+3 {
		return incoming
	}
	return existing
}

func resolveTitle(existing, incoming string) string {
	existingSenior := containsAnyFold(existing, seniorityMarkers)
	incomingSenior := containsAnyFold(incoming, seniorityMarkers)

	if incomingSenior && !existingSenior {
		return incoming
	}
	if existingSenior && !incomingSenior {
		return existing
	}

	if len(incoming) >= len(existing)+5 {
		return incoming
	}
	return existing
}

func resolvePhone(existing, incoming string) string {
	existingIntl := strings.HasPrefix(existing, "+")
	incomingIntl := strings.HasPrefix(incoming, "+")
	if incomingIntl && !existingIntl {
		return incoming
	}
	if existingIntl && !incomingIntl {
		return existing
	}

	existingExt := containsAnyFold(existing, extensionMarkers)
	incomingExt := containsAnyFold(incoming, extensionMarkers)
	if incomingExt && !existingExt {
		return incoming
	}
	if existingExt && !incomingExt {
		return existing
	}

	if digitCount(incoming) > digitCount(existing) {
		return incoming
	}
	return existing
}

func containsAnyFold(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
