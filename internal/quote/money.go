package quote

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount as "$ 9.500.000".
func FormatMoney(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-$ " + b.String()
	}
	return "$ " + b.String()
}

// FormatPercent renders a percentage without trailing zeros.
func FormatPercent(d decimal.Decimal) string {
	return d.String() + "%"
}
