package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
	"2006/01/02",
}

// parseDate tries the supported layouts in order. An explicit layout,
// when given, is tried first.
func parseDate(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Number formats a profile may select for amount cells.
const (
	formatUS      = "us"       // 1,234.56
	formatEU      = "eu"       // 1.234,56
	formatEUSpace = "eu_space" // 1 234,56
)

// Trailing currency codes some bank exports append to amounts.
var currencySuffixes = []string{
	"PLN", "EUR", "USD", "GBP", "CHF", "CZK", "SEK", "NOK", "DKK",
	"CAD", "AUD", "JPY", "CNY", "INR", "BRL", "MXN", "KRW", "RUB",
}

func stripCurrencySuffix(s string) string {
	for _, code := range currencySuffixes {
		if rest, ok := strings.CutSuffix(s, code); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}

// parseAmount normalizes a money cell. Parenthesized values are
// negative by accounting convention; currency suffixes and the
// format's thousands separators are stripped before parsing.
func parseAmount(s, format string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	s = stripCurrencySuffix(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	switch strings.ToLower(format) {
	case formatEU:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case formatEUSpace:
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q", s)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q: %w", s, err)
	}
	if negative && amount.IsPositive() {
		amount = amount.Neg()
	}
	return amount, nil
}

// sniffDelimiter picks the delimiter that splits a sample line into
// the most fields. Comma wins ties.
func sniffDelimiter(line string) rune {
	best := ','
	bestCount := strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best = d
			bestCount = c
		}
	}
	return best
}
