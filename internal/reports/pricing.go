package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

var minPrice = decimal.RequireFromString("0.01")

// applyPercent computes price * (1 + pct/100) rounded to 2 decimal places.
func applyPercent(price decimal.Decimal, pct float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(2)
}

// monthRange returns [first day of month, first day of next month) in UTC.
func monthRange(month, year int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
