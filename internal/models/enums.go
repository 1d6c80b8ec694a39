package models

import "fmt"

// OrderType is the side of a limit order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// OrderStatus is the lifecycle state of an order. INITIAL -> EXECUTED is the
// only transition; cancellation removes the record instead.
type OrderStatus string

const (
	OrderStatusInitial  OrderStatus = "initial"
	OrderStatusExecuted OrderStatus = "executed"
)

// MarketOrderType is the side of a market order recorded in the executed log.
type MarketOrderType string

const (
	MarketOrderTypeBuy  MarketOrderType = "buy"
	MarketOrderTypeSell MarketOrderType = "sell"
)

// OrderTypeError reports an unknown order side value.
type OrderTypeError struct{ Value string }

func (e *OrderTypeError) Error() string {
	return fmt.Sprintf("wrong OrderType %q", e.Value)
}

// OrderStatusError reports an unknown order status value.
type OrderStatusError struct{ Value string }

func (e *OrderStatusError) Error() string {
	return fmt.Sprintf("wrong OrderStatus %q", e.Value)
}

// MarketOrderTypeError reports an unknown market order side value.
type MarketOrderTypeError struct{ Value string }

func (e *MarketOrderTypeError) Error() string {
	return fmt.Sprintf("wrong MarketOrderType %q", e.Value)
}

// parseEnum matches value against the variant set, returning the variant or
// the family's error.
func parseEnum[T ~string](value string, variants []T, newErr func(string) error) (T, error) {
	for _, v := range variants {
		if string(v) == value {
			return v, nil
		}
	}
	var zero T
	return zero, newErr(value)
}

// ParseOrderType parses an order side reported by the exchange.
func ParseOrderType(value string) (OrderType, error) {
	return parseEnum(value, []OrderType{OrderTypeBuy, OrderTypeSell},
		func(v string) error { return &OrderTypeError{Value: v} })
}

// ParseOrderStatus parses a stored order status.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseEnum(value, []OrderStatus{OrderStatusInitial, OrderStatusExecuted},
		func(v string) error { return &OrderStatusError{Value: v} })
}

// ParseMarketOrderType parses a market order side.
func ParseMarketOrderType(value string) (MarketOrderType, error) {
	return parseEnum(value, []MarketOrderType{MarketOrderTypeBuy, MarketOrderTypeSell},
		func(v string) error { return &MarketOrderTypeError{Value: v} })
}

// BasicCurrencies are the quote currencies a market string is matched
// against when deriving its pair legs.
var BasicCurrencies = []string{"BTC", "USDT", "USDC"}
