package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a partial trade execution tied to an order. Immutable once built
// from exchange data.
type Fill struct {
	FillID string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Side   OrderType
	Date   time.Time
}

// FillPayload is a user-deal record as reported by the exchange, already
// lifted out of its wire envelope.
type FillPayload struct {
	DealID    string
	Amount    string
	Price     string
	Side      string
	CreatedAt int64 // milliseconds
}

// FillFromPayload maps an exchange deal record into a canonical Fill.
// Required fields that are missing or malformed produce a PayloadError
// naming the field.
func FillFromPayload(payload FillPayload) (Fill, error) {
	if payload.DealID == "" {
		return Fill{}, &PayloadError{Field: "deal_id"}
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return Fill{}, &PayloadError{Field: "amount", cause: err}
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return Fill{}, &PayloadError{Field: "price", cause: err}
	}
	side, err := ParseOrderType(payload.Side)
	if err != nil {
		return Fill{}, err
	}
	return Fill{
		FillID: payload.DealID,
		Amount: amount,
		Price:  price,
		Side:   side,
		Date:   time.UnixMilli(payload.CreatedAt).UTC(),
	}, nil
}
