package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coinex-trade-bot-go/internal/config"
)

// PayloadError reports a missing or malformed required field in an exchange
// or stored record. Required fields are never silently defaulted.
type PayloadError struct {
	Field string
	cause error
}

func (e *PayloadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("malformed payload field %q: %v", e.Field, e.cause)
	}
	return fmt.Sprintf("missing payload field %q", e.Field)
}

func (e *PayloadError) Unwrap() error { return e.cause }

// UnknownMarketError reports a market string that matches no known quote
// currency by prefix or suffix.
type UnknownMarketError struct{ Market string }

func (e *UnknownMarketError) Error() string {
	return fmt.Sprintf("unknown market %q", e.Market)
}

// Order is the canonical representation of one exchange order. OrderID is
// exchange-assigned and acts as the idempotency key for persistence.
//
// Exactly one of BuyPrice/SellPrice is set on a freshly created order; both
// are set after a join, where prices are amount-weighted averages.
type Order struct {
	OrderID   string
	Created   time.Time
	Executed  time.Time // zero until execution; see ExecutedAt
	Type      OrderType
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	Status    OrderStatus
	Amount    decimal.Decimal
	Fills     []Fill
	Benefit   *decimal.Decimal
	Market    string

	currencyFrom string
	currencyTo   string
}

// OrderPayload is an order as reported by the exchange, already lifted out
// of its wire envelope.
type OrderPayload struct {
	OrderID   string
	Market    string
	Side      string
	Amount    string
	Price     string
	CreatedAt int64 // milliseconds
}

// CreateFromExchange maps an exchange order payload into a canonical Order,
// applying the market's rounding policy and assigning the price field that
// matches the side. Status starts at INITIAL.
func CreateFromExchange(cfg *config.Config, payload OrderPayload) (*Order, error) {
	if payload.OrderID == "" {
		return nil, &PayloadError{Field: "order_id"}
	}
	side, err := ParseOrderType(payload.Side)
	if err != nil {
		return nil, err
	}
	rawAmount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return nil, &PayloadError{Field: "amount", cause: err}
	}
	amount, err := cfg.RoundAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	rawPrice, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return nil, &PayloadError{Field: "price", cause: err}
	}
	price, err := cfg.RoundPrice(rawPrice)
	if err != nil {
		return nil, err
	}

	market := payload.Market
	if market == "" {
		market = cfg.Market()
	}

	created := time.Now().UTC()
	if payload.CreatedAt > 0 {
		created = time.UnixMilli(payload.CreatedAt).UTC()
	}

	order := &Order{
		OrderID: payload.OrderID,
		Created: created,
		Type:    side,
		Status:  OrderStatusInitial,
		Amount:  amount,
		Market:  market,
	}
	switch side {
	case OrderTypeBuy:
		order.BuyPrice = &price
	case OrderTypeSell:
		order.SellPrice = &price
	}
	return order, nil
}

// ExecutedAt is the execution timestamp, defaulting to the creation time
// when the exchange reported none.
func (o *Order) ExecutedAt() time.Time {
	if o.Executed.IsZero() {
		return o.Created
	}
	return o.Executed
}

// Price is the populated side's price: BuyPrice for buys, SellPrice for
// sells.
func (o *Order) Price() *decimal.Decimal {
	if o.Type == OrderTypeBuy {
		return o.BuyPrice
	}
	return o.SellPrice
}

// CurrencyFrom is the base leg of the order's market. Derived on first use
// and cached; caching is safe because derivation is pure.
func (o *Order) CurrencyFrom() (string, error) {
	if err := o.deriveCurrencies(); err != nil {
		return "", err
	}
	return o.currencyFrom, nil
}

// CurrencyTo is the quote leg of the order's market.
func (o *Order) CurrencyTo() (string, error) {
	if err := o.deriveCurrencies(); err != nil {
		return "", err
	}
	return o.currencyTo, nil
}

func (o *Order) deriveCurrencies() error {
	if o.currencyFrom != "" {
		return nil
	}
	from, to, err := DeriveCurrencyPair(o.Market)
	if err != nil {
		return err
	}
	o.currencyFrom, o.currencyTo = from, to
	return nil
}

// DeriveCurrencyPair splits a concatenated market string into its two legs
// by matching the known quote currencies, first as prefix, then as suffix.
// A market that matches neither fails fast with UnknownMarketError.
func DeriveCurrencyPair(market string) (from, to string, err error) {
	for _, ccy := range BasicCurrencies {
		if rest, ok := strings.CutPrefix(market, ccy); ok && rest != "" {
			return ccy, rest, nil
		}
	}
	for _, ccy := range BasicCurrencies {
		if rest, ok := strings.CutSuffix(market, ccy); ok && rest != "" {
			return rest, ccy, nil
		}
	}
	return "", "", &UnknownMarketError{Market: market}
}
