package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the finest precision any market or currency is quoted at.
const MaxDecimals = 8

// currencyDecimals holds the fixed decimal count per currency, used when an
// amount is denominated in a currency rather than tied to a market.
var currencyDecimals = map[string]int32{
	"BTC":  8,
	"USDT": 2,
	"USDC": 2,
}

const defaultCurrencyDecimals = 8

// RoundingError is returned when a value cannot be quantized at the
// requested precision.
type RoundingError struct {
	Value    decimal.Decimal
	Decimals int
}

func (e *RoundingError) Error() string {
	return fmt.Sprintf("error rounding %s with %d decimals", e.Value, e.Decimals)
}

// Round quantizes value at the given number of decimal places, always
// rounding up. The round-up bias is deliberate: the bot must never
// under-quote a price or amount, so half-even rounding is not used here.
func Round(value decimal.Decimal, decimals int) (decimal.Decimal, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return decimal.Decimal{}, &RoundingError{Value: value, Decimals: decimals}
	}
	return value.RoundUp(int32(decimals)), nil
}

// RoundByCurrency rounds an amount denominated in the given currency using
// the fixed per-currency decimals table. Unknown currencies fall back to
// eight decimals.
func RoundByCurrency(value decimal.Decimal, currency string) decimal.Decimal {
	places, ok := currencyDecimals[currency]
	if !ok {
		places = defaultCurrencyDecimals
	}
	return value.RoundUp(places)
}

// AbsDiff returns the absolute difference between two decimals.
func AbsDiff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}
