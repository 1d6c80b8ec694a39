package models

import "github.com/shopspring/decimal"

// Balance is the per-currency capital state of the bot: spendable funds plus
// funds held against open orders.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// Total is everything the bot owns in this currency.
func (b *Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
