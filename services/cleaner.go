package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	squareMetersPerHectare  = 10000.0
	squareMetersPerAlqueire = 48400.0 // alqueire paulista
)

var (
	// currencyRegexp captures the numeric part of an "R$ 1.250.000,50" token.
	// \p{Zs} covers the no-break space of "R$&nbsp;1.250.000,50".
	currencyRegexp = regexp.MustCompile(`R\$[\s\p{Zs}]*(\d[\d.]*(?:,\d{1,2})?)`)
	// bareNumberRegexp captures a locale-formatted number with no currency prefix.
	bareNumberRegexp = regexp.MustCompile(`\d[\d.]*(?:,\d+)?`)
	// areaRegexp captures "<number> <unit>"; the trailing group keeps "ha" from matching "habitação".
	areaRegexp = regexp.MustCompile(`(?i)(\d[\d.]*(?:,\d+)?)\s*(hectares?|ha|alqueires?|alq|m²|m2)(?:[^\p{L}\p{N}]|$)`)
)

// ParseBRLNumber parses a number written with "." as thousands separator and
// "," as decimal separator ("1.250.000,50" -> 1250000.5).
func ParseBRLNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParsePriceCents reads a price from a dedicated price element's text. The
// element may omit the currency prefix. It returns false when nothing parses.
func ParsePriceCents(raw string) (int64, bool) {
	raw = NormaliseText(raw)
	if cents, ok := FindPriceCents(raw); ok {
		return cents, true
	}
	m := bareNumberRegexp.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, ok := ParseBRLNumber(m)
	if !ok || v == 0 {
		return 0, false
	}
	return toCents(v), true
}

// FindPriceCents scans free text for the first "R$"-prefixed amount.
func FindPriceCents(text string) (int64, bool) {
	for _, m := range currencyRegexp.FindAllStringSubmatch(text, -1) {
		v, ok := ParseBRLNumber(m[1])
		if ok && v > 0 {
			return toCents(v), true
		}
	}
	return 0, false
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FindAreaSquareMeters scans free text for the first "<number> <unit>" token
// and converts it to square meters.
func FindAreaSquareMeters(text string) (float64, bool) {
	m := areaRegexp.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := ParseBRLNumber(m[1])
	if !ok {
		return 0, false
	}
	switch unit := strings.ToLower(m[2]); {
	case strings.HasPrefix(unit, "hectare"), unit == "ha":
		return v * squareMetersPerHectare, true
	case strings.HasPrefix(unit, "alq"):
		return v * squareMetersPerAlqueire, true
	default:
		return v, true
	}
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
