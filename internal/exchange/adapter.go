// Package exchange defines the adapter contract the reconciliation engine
// consumes. Concrete exchange bindings live in subpackages.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"coinex-trade-bot-go/internal/models"
)

// Adapter is the capability set one exchange binding provides. Every call
// crosses the network and is wrapped by the binding's bounded-retry policy;
// an error returned here means that budget was already exhausted.
type Adapter interface {
	// FetchPrice returns the current market price, guaranteed to differ
	// from the previously returned one, stamped with a UTC timestamp.
	FetchPrice(ctx context.Context) (models.Price, error)

	// FetchCurrencyPrice returns the currency's price against USDT.
	FetchCurrencyPrice(ctx context.Context, currency string) (decimal.Decimal, error)

	// GetBalances returns the per-currency balances for every currency the
	// bot tracks. A failed fetch is an error, never an empty map.
	GetBalances(ctx context.Context) (map[string]*models.Balance, error)

	// OrderPending lists the exchange-reported open orders, reconciled
	// against the local repository: local records win on order_id hits,
	// unknown orders are persisted immediately.
	OrderPending(ctx context.Context, market string) ([]*models.Order, error)

	// CreateBuyOrder places a limit buy, rounding inputs per the market's
	// decimal policy, and persists the resulting canonical order.
	CreateBuyOrder(ctx context.Context, amount, price decimal.Decimal) (*models.Order, error)

	// CreateSellOrder places a limit sell. buyPrice is the locally tracked
	// acquisition price carried on the order for benefit accounting; it may
	// be nil.
	CreateSellOrder(ctx context.Context, amount, price decimal.Decimal, buyPrice *decimal.Decimal) (*models.Order, error)

	// CreateMarketOrder places a market order, assumed to fill atomically.
	CreateMarketOrder(ctx context.Context, side models.OrderType, amount decimal.Decimal) (*models.Order, error)

	// CancelOrder cancels the order on the exchange and removes the local
	// record only on confirmed success.
	CancelOrder(ctx context.Context, market, orderID string) (*models.Order, error)

	// GetFilled returns the fills on the given side since the cursor. A nil
	// cursor defaults to the fixed fill epoch.
	GetFilled(ctx context.Context, side models.OrderType, since *time.Time) ([]models.Fill, error)
}
