// Package ident — pure derivation of the identifiers the coordinator keys
// everything by: canonical contact addresses, session buckets, session and
// memory pointers, and the timestamp encodings they round-trip through.
//
// Pointer and bucket values are ISO-like strings so they sort
// lexicographically in the same order as chronologically:
//
//	bucket:  2025-03-14T16:00:00Z            (hour aligned)
//	pointer: 2025-03-14T16:23:08.114592Z     (microsecond precision)
//	memory:  5511999990000_mem_{pointer}     (self-describing)
package ident

import (
	"log/slog"
	"strings"
)

const (
	// countryPrefix is the expected country code on canonical contacts.
	countryPrefix = "55"
	// canonicalLen is prefix + area code + subscriber number.
	canonicalLen = 13
	// localLen is a contact without the country prefix.
	localLen = 11
)

// NormalizeContact canonicalizes a contact address to digits-only with the
// country prefix. It never fails: inputs that fit no known pattern are
// passed through (trimmed to the canonical tail when the tail itself is
// well-formed) and the anomaly is logged for operators.
func NormalizeContact(raw string) string {
	if raw == "" {
		slog.Warn("empty contact given for normalization")
		return raw
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, countryPrefix) && len(digits) == canonicalLen:
		return digits
	case len(digits) == localLen:
		return countryPrefix + digits
	case len(digits) == canonicalLen:
		slog.Warn("contact has canonical length but unexpected country code", "contact", digits)
		return digits
	case len(digits) > canonicalLen:
		tail := digits[len(digits)-canonicalLen:]
		if strings.HasPrefix(tail, countryPrefix) {
			slog.Warn("contact has excess digits, trimming to canonical tail", "digits", len(digits))
			return tail
		}
		slog.Warn("contact has excess digits and no canonical tail", "digits", len(digits))
		return digits
	case len(digits) < localLen:
		slog.Warn("contact has too few digits after cleanup", "digits", len(digits))
		return digits
	default:
		slog.Warn("contact fits no known pattern", "digits", len(digits))
		return digits
	}
}
