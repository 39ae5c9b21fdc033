package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reNonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips everything but digits; access keys are normalized this
// way before they are used as the idempotency key.
func DigitsOnly(s string) string {
	return reNonDigits.ReplaceAllString(s, "")
}

// ParseBRDecimalCents parses a pt-BR formatted monetary value ("1.234,56",
// optionally prefixed with R$) into integer hundredths. Returns zero on any
// parse failure.
func ParseBRDecimalCents(value string) int64 {
	if value == "" {
		return 0
	}
	normalized := strings.NewReplacer("R$", "", " ", "", ".", "").Replace(value)
	normalized = strings.ReplaceAll(normalized, ",", ".")
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(v * 100))
}

// NumberCents converts a plain decimal number (completion-service output)
// into integer hundredths.
func NumberCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// ParseBRDate parses "DD/MM/YYYY"; nil when absent or malformed.
func ParseBRDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.ParseInLocation("02/01/2006", value, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// ParseBRDateTime parses "DD/MM/YYYY HH:MM[:SS]"; nil when absent or
// malformed.
func ParseBRDateTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{"02/01/2006 15:04:05", "02/01/2006 15:04"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

// ParseISODate parses "YYYY-MM-DD"; nil when absent or malformed.
func ParseISODate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// ParseISODateTime parses an ISO timestamp with or without a zone offset;
// nil when absent or malformed.
func ParseISODateTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

// ParseBoolToken maps affirmative/negative textual tokens to a boolean,
// falling back to def when absent or ambiguous.
func ParseBoolToken(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sim", "s", "yes", "true":
		return true
	case "não", "nao", "n", "false":
		return false
	default:
		return def
	}
}
