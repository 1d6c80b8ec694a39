package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price is a market price observation tagged with a UTC timestamp.
type Price struct {
	Price decimal.Decimal
	Date  time.Time
}

// NewPrice stamps a price with the current UTC time.
func NewPrice(price decimal.Decimal) Price {
	return Price{Price: price, Date: time.Now().UTC()}
}
