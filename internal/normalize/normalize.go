// Package normalize turns the loosely formatted text produced by the
// extraction service or typed into the shared table into typed values.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseAmount parses locale-ambiguous money text such as "1.234,56 EUR" or
// "$45.00". When both separators appear the right-most one is the decimal
// separator; a lone comma is a decimal separator; repeated separators of a
// single kind are thousands separators. Invalid input yields 0.
func ParseAmount(raw string) float64 {
	var b strings.Builder
	negative := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	clean := b.String()
	if clean == "" {
		return 0
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	if negative {
		value = -value
	}
	return value
}

// dateLayouts are tried in order; day-first layouts precede month-first ones
// because invoices in this domain are European.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date in any of the accepted layouts
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// DateFormat selects how dates are written back as text
type DateFormat string

const (
	// DateFormatDMY writes DD-MM-YYYY, the format requested from the extraction service
	DateFormatDMY DateFormat = "dmy"
	// DateFormatISO writes YYYY-MM-DD
	DateFormatISO DateFormat = "iso"
)

// Layout returns the time layout for the format; unknown formats fall back to ISO
func (f DateFormat) Layout() string {
	if f == DateFormatDMY {
		return "02-01-2006"
	}
	return "2006-01-02"
}

// Valid reports whether f is a known format
func (f DateFormat) Valid() bool {
	return f == DateFormatDMY || f == DateFormatISO
}

// FormatDate rewrites raw in the given format. Unparseable text is returned
// trimmed but otherwise untouched so that nothing the service produced is lost.
func FormatDate(raw string, format DateFormat) string {
	t, ok := ParseDate(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return t.Format(format.Layout())
}

// NormalizeDate rewrites raw as an ISO date ("05-03-2024" -> "2024-03-05")
func NormalizeDate(raw string) string {
	return FormatDate(raw, DateFormatISO)
}

// Currency normalizes a currency code or symbol to an ISO 4217 code,
// returning fallback when the input is empty or not recognizable.
func Currency(raw, fallback string) string {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return fallback
	case "€", "EURO", "EUROS":
		return "EUR"
	case "$", "US$", "DOLLAR", "DOLLARS":
		return "USD"
	case "£", "POUND", "POUNDS":
		return "GBP"
	case "₽", "RUB.", "РУБ", "РУБ.":
		return "RUB"
	}
	if len(normalized) == 3 && isLetters(normalized) {
		return normalized
	}
	return fallback
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
