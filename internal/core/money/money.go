// Package money normalizes monetary text produced by OCR: currency symbol
// detection, thousands-separator stripping, and tolerant numeric parsing.
package money

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var symbolCodes = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
	"usd": "USD",
	"eur": "EUR",
	"gbp": "GBP",
	"jpy": "JPY",
	"cad": "CAD",
	"aud": "AUD",
	"chf": "CHF",
	"inr": "INR",
}

var (
	reNumeric  = regexp.MustCompile(`^-?\(?\d{1,3}(,\d{3})*(\.\d+)?\)?$|^-?\(?\d+([.,]\d+)?\)?$`)
	reHasDigit = regexp.MustCompile(`\d`)
)

// LooksNumeric reports whether the text reads as a number or amount once
// currency decoration is removed. Used to tell monetary table cells from
// prose.
func LooksNumeric(s string) bool {
	stripped, _ := stripCurrency(strings.TrimSpace(s))
	if stripped == "" || !reHasDigit.MatchString(stripped) {
		return false
	}
	return reNumeric.MatchString(stripped)
}

// DetectCurrency returns the ISO code implied by a currency symbol or code
// embedded in the text, or empty when none is present.
func DetectCurrency(s string) string {
	_, code := stripCurrency(strings.TrimSpace(s))
	return code
}

// ParseAmount parses a monetary string. Currency symbols and thousands
// separators are stripped first; accounting-style parentheses negate.
// The returned code is empty when the text carried no currency marker.
func ParseAmount(s string) (float64, string, error) {
	stripped, code := stripCurrency(strings.TrimSpace(s))
	if stripped == "" {
		return 0, "", fmt.Errorf("parse amount %q: no numeric content", s)
	}

	negative := false
	if strings.HasPrefix(stripped, "(") && strings.HasSuffix(stripped, ")") {
		negative = true
		stripped = stripped[1 : len(stripped)-1]
	}
	if strings.HasPrefix(stripped, "-") {
		negative = !negative
		stripped = stripped[1:]
	}

	stripped = normalizeSeparators(stripped)
	value, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse amount %q: %w", s, err)
	}
	if negative {
		value = -value
	}
	return value, code, nil
}

func stripCurrency(s string) (string, string) {
	code := ""
	var b strings.Builder
	for _, r := range s {
		if c, ok := symbolCodes[string(r)]; ok {
			if code == "" {
				code = c
			}
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())

	// Alphabetic ISO codes attached before or after the number.
	fields := strings.Fields(out)
	kept := fields[:0]
	for _, f := range fields {
		if c, ok := symbolCodes[strings.ToLower(f)]; ok {
			if code == "" {
				code = c
			}
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " "), code
}

// normalizeSeparators handles both 1,234.56 and 1.234,56 styles. A comma
// followed by exactly two digits at the end is a decimal comma.
func normalizeSeparators(s string) string {
	if idx := strings.LastIndex(s, ","); idx >= 0 && len(s)-idx-1 == 2 && !strings.Contains(s[idx:], ".") {
		intPart := strings.ReplaceAll(s[:idx], ".", "")
		intPart = strings.ReplaceAll(intPart, ",", "")
		return intPart + "." + s[idx+1:]
	}
	return strings.ReplaceAll(s, ",", "")
}
