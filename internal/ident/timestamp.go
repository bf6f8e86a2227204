package ident

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTimestamp marks input that matches none of the supported
// encodings. Callers must not treat it as fatal: the documented fallback is
// to mint a fresh timestamp and carry on.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// ParseTimestamp converts any of the three historical timestamp encodings
// to integer seconds since the Unix epoch:
//
//   - short digit form: "1741968188" (seconds since epoch, ≤10 digits)
//   - ISO form: "2025-03-14T16:23:08Z", with optional fraction and offset
//   - compact positional form: "20250314162308" plus an optional
//     microsecond tail ("20250314162308114592")
func ParseTimestamp(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty input", ErrMalformedTimestamp)
	}

	if strings.Contains(s, "T") && strings.Contains(s, "-") {
		return parseISO(s)
	}

	if len(s) <= 10 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
		}
		return n, nil
	}

	return parseCompact(s)
}

func parseISO(s string) (int64, error) {
	layouts := []string{
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}
	// A bare trailing Z means UTC; strip it so offset-less layouts match.
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
		if t, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid ISO form %q", ErrMalformedTimestamp, s)
}

func parseCompact(s string) (int64, error) {
	if len(s) < 14 {
		return 0, fmt.Errorf("%w: compact form needs at least 14 digits, got %q", ErrMalformedTimestamp, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: compact form has non-digit %q", ErrMalformedTimestamp, s)
		}
	}

	atoi := func(sub string) int {
		n, _ := strconv.Atoi(sub)
		return n
	}
	year := atoi(s[0:4])
	month := atoi(s[4:6])
	day := atoi(s[6:8])
	hour := atoi(s[8:10])
	minute := atoi(s[10:12])
	second := atoi(s[12:14])
	micro := 0
	if len(s) >= 20 {
		micro = atoi(s[14:20])
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 60 {
		return 0, fmt.Errorf("%w: compact form out of range %q", ErrMalformedTimestamp, s)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, micro*1000, time.UTC)
	return t.Unix(), nil
}

// NormalizeToISO rewrites a compact positional timestamp to the pointer
// ISO form. Values already ISO-shaped, or unrecognizable, pass through
// unchanged — legacy rows may carry either encoding.
func NormalizeToISO(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	if strings.Contains(s, "T") && strings.Contains(s, "-") {
		return s
	}
	if len(s) < 14 {
		return s
	}
	secs, err := parseCompact(s)
	if err != nil {
		return s
	}
	micro := 0
	if len(s) >= 20 {
		micro, _ = strconv.Atoi(s[14:20])
	}
	return time.Unix(secs, int64(micro)*1000).UTC().Format(pointerLayout)
}
