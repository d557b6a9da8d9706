package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isinRe     = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{10}\b`)
	wsRe       = regexp.MustCompile(`\s+`)
	isoDateRe  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	euroDateRe = regexp.MustCompile(`(\d{2})[./-](\d{2})[./-](\d{4})`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Placeholder tokens that never count as a real value.
var invalidNameValues = map[string]bool{
	"":          true,
	"null":      true,
	"none":      true,
	"n/a":       true,
	"na":        true,
	"undefined": true,
	"-":         true,
}

// PriceUnavailable is the sentinel stored when every price source failed.
const PriceUnavailable = "unavailable"

// NormalizeISIN uppercases the input and extracts the first ISIN-shaped
// substring (2 letters + 10 alphanumerics). Returns "" when the input does
// not contain an ISIN.
func NormalizeISIN(s string) string {
	if s == "" {
		return ""
	}
	return isinRe.FindString(strings.ToUpper(s))
}

// NormalizeName collapses whitespace and trims. Placeholder tokens such as
// "null" or "n/a" are mapped to the empty string.
func NormalizeName(s string) string {
	name := strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
	if invalidNameValues[strings.ToLower(name)] {
		return ""
	}
	return name
}

// NormalizeCurrency accepts only a 3-letter uppercase code.
func NormalizeCurrency(s string) string {
	code := strings.TrimSpace(s)
	if currencyRe.MatchString(code) {
		return code
	}
	return ""
}

// NormalizeClosePrice treats placeholder tokens and the "unavailable"
// sentinel as empty, so callers can distinguish "never resolved" from a
// stored result.
func NormalizeClosePrice(s string) string {
	text := strings.TrimSpace(s)
	lowered := strings.ToLower(text)
	if invalidNameValues[lowered] || lowered == PriceUnavailable {
		return ""
	}
	return text
}

// ParseNumber parses a numeric string tolerating European and US formats.
// Spaces and percent signs are stripped. When the text contains exactly one
// comma together with at least one dot, the dot is treated as a thousands
// separator ("1.234,56" -> 1234.56); otherwise any comma is treated as the
// decimal separator. Returns ok=false on unparseable input, never panics.
func ParseNumber(s string) (float64, bool) {
	text := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if text == "" {
		return 0, false
	}
	text = strings.ReplaceAll(text, "%", "")
	if strings.Count(text, ",") == 1 && strings.Count(text, ".") >= 1 {
		text = strings.ReplaceAll(text, ".", "")
		text = strings.ReplaceAll(text, ",", ".")
	} else {
		text = strings.ReplaceAll(text, ",", ".")
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var payloadDateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate normalizes a date-ish string to YYYY-MM-DD. It tries the known
// layouts against the first ten characters, then falls back to extracting an
// ISO-shaped or DD.MM.YYYY-shaped substring. Returns "" on failure.
func ParseDate(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	head := raw
	if len(head) > 10 {
		head = head[:10]
	}
	for _, layout := range payloadDateLayouts {
		if t, err := time.Parse(layout, head); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if m := isoDateRe.FindString(raw); m != "" {
		return m
	}
	if m := euroDateRe.FindStringSubmatch(raw); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	return ""
}

// DateOlderThan reports whether dateStr (YYYY-MM-DD) lies more than maxDays
// in the past. Unparseable dates are never considered old, so they still go
// through the normal resolution path.
func DateOlderThan(dateStr string, maxDays int) bool {
	d, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return false
	}
	return time.Now().UTC().Sub(d) > time.Duration(maxDays)*24*time.Hour
}
