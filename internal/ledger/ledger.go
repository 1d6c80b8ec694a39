// Package ledger tracks per-currency available and locked funds, enforcing
// the non-negative invariants around order placement, cancellation and
// settlement.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"coinex-trade-bot-go/internal/models"
	"coinex-trade-bot-go/internal/money"
)

// InsufficientBalanceError is raised when a lock or debit would push a
// balance negative. It is a domain error: retrying cannot change the
// outcome.
type InsufficientBalanceError struct {
	Currency  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %s, available %s",
		e.Currency, e.Requested, e.Available)
}

// BalanceNotFoundError is raised when an operation requires a currency the
// ledger has never seen.
type BalanceNotFoundError struct{ Currency string }

func (e *BalanceNotFoundError) Error() string {
	return fmt.Sprintf("no balance for currency %s", e.Currency)
}

// Ledger holds the bot's balances. It is not safe for concurrent use: the
// engine is the single writer, and lock/unlock around an order action must
// stay a critical section if that ever changes.
type Ledger struct {
	balances     map[string]*models.Balance
	currencyFrom string
	reserveUSDT  decimal.Decimal
}

// New creates a ledger for a bot whose base currency is currencyFrom and
// whose standing reserve is reserveUSDT.
func New(currencyFrom string, reserveUSDT decimal.Decimal) *Ledger {
	return &Ledger{
		balances:     map[string]*models.Balance{},
		currencyFrom: currencyFrom,
		reserveUSDT:  reserveUSDT,
	}
}

// SetBalances replaces the ledger contents with a fresh exchange snapshot.
func (l *Ledger) SetBalances(balances map[string]*models.Balance) {
	l.balances = map[string]*models.Balance{}
	for ccy, b := range balances {
		copied := *b
		l.balances[ccy] = &copied
	}
}

// Get returns the balance for a currency or BalanceNotFoundError.
func (l *Ledger) Get(currency string) (*models.Balance, error) {
	b, ok := l.balances[currency]
	if !ok {
		return nil, &BalanceNotFoundError{Currency: currency}
	}
	return b, nil
}

// Increase credits available funds unconditionally, creating the balance
// row if absent.
func (l *Ledger) Increase(currency string, amount decimal.Decimal) {
	b, ok := l.balances[currency]
	if !ok {
		b = &models.Balance{Currency: currency}
		l.balances[currency] = b
	}
	b.Available = b.Available.Add(amount)
}

// Lock reserves funds against an open order: available -> locked. It must
// be called before submitting an order that holds funds, and fails without
// mutating state when available funds do not cover the amount.
func (l *Ledger) Lock(currency string, amount decimal.Decimal) error {
	b, err := l.Get(currency)
	if err != nil {
		return err
	}
	if b.Available.LessThan(amount) {
		return &InsufficientBalanceError{Currency: currency, Requested: amount, Available: b.Available}
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return nil
}

// Unlock releases funds held by an order: locked -> available. The inverse
// of Lock; the two must be paired per order.
func (l *Ledger) Unlock(currency string, amount decimal.Decimal) error {
	b, err := l.Get(currency)
	if err != nil {
		return err
	}
	if b.Locked.LessThan(amount) {
		return &InsufficientBalanceError{Currency: currency, Requested: amount, Available: b.Locked}
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return nil
}

// Inc credits available funds for the received leg of a completed trade.
func (l *Ledger) Inc(currency string, amount decimal.Decimal) error {
	b, err := l.Get(currency)
	if err != nil {
		return err
	}
	b.Available = b.Available.Add(amount)
	return nil
}

// Dec debits available funds for the spent leg of a completed trade.
func (l *Ledger) Dec(currency string, amount decimal.Decimal) error {
	b, err := l.Get(currency)
	if err != nil {
		return err
	}
	if b.Available.LessThan(amount) {
		return &InsufficientBalanceError{Currency: currency, Requested: amount, Available: b.Available}
	}
	b.Available = b.Available.Sub(amount)
	return nil
}

// ReservedAmount converts the configured USDT reserve into base-currency
// units at the given price. This is the "rinconcito": a floor callers must
// not spend below. The ledger computes it but does not enforce it.
func (l *Ledger) ReservedAmount(price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Decimal{}
	}
	return money.RoundByCurrency(l.reserveUSDT.Div(price), l.currencyFrom)
}

// SpendableAmount is the base-currency amount available above the reserve
// floor at the given price. Never negative.
func (l *Ledger) SpendableAmount(price decimal.Decimal) decimal.Decimal {
	b, ok := l.balances[l.currencyFrom]
	if !ok {
		return decimal.Decimal{}
	}
	spendable := b.Available.Sub(l.ReservedAmount(price))
	if spendable.IsNegative() {
		return decimal.Decimal{}
	}
	return spendable
}
