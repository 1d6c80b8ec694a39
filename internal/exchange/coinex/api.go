package coinex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinex-trade-bot-go/internal/config"
	"coinex-trade-bot-go/internal/exchange"
	"coinex-trade-bot-go/internal/models"
	"coinex-trade-bot-go/internal/store"
)

// fillEpoch is the fixed default cursor for fill retrieval when a bot has
// no saved cursor yet.
var fillEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FetchBalanceError wraps a failed balance fetch; the caller must never see
// an empty balance map instead of an error.
type FetchBalanceError struct {
	cause error
}

func (e *FetchBalanceError) Error() string {
	return fmt.Sprintf("error fetching balance: %v", e.cause)
}

func (e *FetchBalanceError) Unwrap() error { return e.cause }

// ClientAPI is the slice of the REST client the adapter consumes; tests
// substitute a fake.
type ClientAPI interface {
	MarketDeals(ctx context.Context, market string, limit int) ([]MarketDeal, error)
	BalanceInfo(ctx context.Context) (map[string]BalanceData, error)
	OrderPending(ctx context.Context, market string) ([]OrderData, error)
	PutLimitOrder(ctx context.Context, market, side, amount, price string) (*OrderData, error)
	PutMarketOrder(ctx context.Context, market, side, amount string) (*OrderData, error)
	CancelOrder(ctx context.Context, market, orderID string) (*OrderData, error)
	UserDeals(ctx context.Context, market string, startTime int64) ([]DealData, error)
}

var _ ClientAPI = (*Client)(nil)

// API implements the exchange adapter contract against CoinEx.
type API struct {
	client ClientAPI
	cfg    *config.Config
	orders *store.OrderRepository
	logger *zap.Logger

	previousPrice *decimal.Decimal
	pollInterval  time.Duration
}

var _ exchange.Adapter = (*API)(nil)

// NewAPI creates the CoinEx adapter.
func NewAPI(cfg *config.Config, client ClientAPI, orders *store.OrderRepository, logger *zap.Logger) *API {
	return &API{
		client:       client,
		cfg:          cfg,
		orders:       orders,
		logger:       logger,
		pollInterval: 250 * time.Millisecond,
	}
}

// FetchPrice polls the market's latest deal until the price differs from
// the previously returned one, then stamps it with the current UTC time.
func (a *API) FetchPrice(ctx context.Context) (models.Price, error) {
	for {
		deals, err := a.client.MarketDeals(ctx, a.cfg.Market(), 1)
		if err != nil {
			return models.Price{}, err
		}
		if len(deals) > 0 {
			raw, err := decimal.NewFromString(deals[0].Price)
			if err != nil {
				return models.Price{}, &models.PayloadError{Field: "price"}
			}
			price, err := a.cfg.RoundPrice(raw)
			if err != nil {
				return models.Price{}, err
			}
			if a.previousPrice == nil || !price.Equal(*a.previousPrice) {
				a.previousPrice = &price
				return models.NewPrice(price), nil
			}
		}

		select {
		case <-ctx.Done():
			return models.Price{}, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

// FetchCurrencyPrice returns the currency's latest price against USDT, or
// zero when the market reports no deals.
func (a *API) FetchCurrencyPrice(ctx context.Context, currency string) (decimal.Decimal, error) {
	deals, err := a.client.MarketDeals(ctx, currency+"USDT", 1)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(deals) == 0 {
		return decimal.Decimal{}, nil
	}
	raw, err := decimal.NewFromString(deals[0].Price)
	if err != nil {
		return decimal.Decimal{}, &models.PayloadError{Field: "price"}
	}
	return a.cfg.RoundPrice(raw)
}

// GetBalances fetches the account balances for every tracked currency,
// defaulting currencies the exchange does not report to zero. Available
// includes frozen funds; locked mirrors frozen.
func (a *API) GetBalances(ctx context.Context) (map[string]*models.Balance, error) {
	balances, err := a.client.BalanceInfo(ctx)
	if err != nil {
		return nil, &FetchBalanceError{cause: err}
	}

	out := map[string]*models.Balance{}
	for _, currency := range a.cfg.Currencies() {
		data, ok := balances[currency]
		if !ok {
			out[currency] = &models.Balance{Currency: currency}
			continue
		}
		available, err := decimal.NewFromString(data.Available)
		if err != nil {
			return nil, &models.PayloadError{Field: "available"}
		}
		frozen, err := decimal.NewFromString(data.Frozen)
		if err != nil {
			return nil, &models.PayloadError{Field: "frozen"}
		}
		out[currency] = &models.Balance{
			Currency:  currency,
			Available: available.Add(frozen),
			Locked:    frozen,
		}
	}
	return out, nil
}

// OrderPending lists the exchange's open orders, reconciling each against
// the local repository: a known order_id keeps the local record with its
// locally tracked metadata; an unknown one is built from the exchange
// payload and persisted immediately, so the local store converges to
// exchange truth.
func (a *API) OrderPending(ctx context.Context, market string) ([]*models.Order, error) {
	exchangeOrders, err := a.client.OrderPending(ctx, market)
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(exchangeOrders))
	for _, data := range exchangeOrders {
		order, err := models.CreateFromExchange(a.cfg, orderPayload(data))
		if err != nil {
			return nil, err
		}
		local, err := a.orders.Get(a.cfg.Label, order.OrderID)
		var notFound *store.OrderNotFoundError
		switch {
		case err == nil:
			orders = append(orders, local)
		case errors.As(err, &notFound):
			if err := a.orders.Save(a.cfg.Label, order); err != nil {
				return nil, err
			}
			orders = append(orders, order)
		default:
			return nil, err
		}
	}
	return orders, nil
}

// CreateBuyOrder places a limit buy and persists the canonical order.
func (a *API) CreateBuyOrder(ctx context.Context, amount, price decimal.Decimal) (*models.Order, error) {
	amount, err := a.cfg.RoundAmount(amount)
	if err != nil {
		return nil, err
	}
	price, err = a.cfg.RoundPrice(price)
	if err != nil {
		return nil, err
	}

	data, err := a.client.PutLimitOrder(ctx, a.cfg.Market(), string(models.OrderTypeBuy), amount.String(), price.String())
	if err != nil {
		return nil, err
	}
	order, err := models.CreateFromExchange(a.cfg, a.payloadWithDefaults(data, models.OrderTypeBuy, amount, price))
	if err != nil {
		return nil, err
	}
	if err := a.orders.Save(a.cfg.Label, order); err != nil {
		return nil, err
	}
	a.logger.Info("Created buy order",
		zap.String("order_id", order.OrderID),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()))
	return order, nil
}

// CreateSellOrder places a limit sell. buyPrice, when given, is carried on
// the persisted order for benefit accounting.
func (a *API) CreateSellOrder(ctx context.Context, amount, price decimal.Decimal, buyPrice *decimal.Decimal) (*models.Order, error) {
	amount, err := a.cfg.RoundAmount(amount)
	if err != nil {
		return nil, err
	}
	price, err = a.cfg.RoundPrice(price)
	if err != nil {
		return nil, err
	}

	data, err := a.client.PutLimitOrder(ctx, a.cfg.Market(), string(models.OrderTypeSell), amount.String(), price.String())
	if err != nil {
		return nil, err
	}
	order, err := models.CreateFromExchange(a.cfg, a.payloadWithDefaults(data, models.OrderTypeSell, amount, price))
	if err != nil {
		return nil, err
	}
	if buyPrice != nil {
		rounded, err := a.cfg.RoundPrice(*buyPrice)
		if err != nil {
			return nil, err
		}
		order.BuyPrice = &rounded
	}
	if err := a.orders.Save(a.cfg.Label, order); err != nil {
		return nil, err
	}
	a.logger.Info("Created sell order",
		zap.String("order_id", order.OrderID),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()))
	return order, nil
}

// CreateMarketOrder places a market order. Market orders fill atomically
// from the adapter's perspective, so the persisted order is already
// EXECUTED.
func (a *API) CreateMarketOrder(ctx context.Context, side models.OrderType, amount decimal.Decimal) (*models.Order, error) {
	amount, err := a.cfg.RoundAmount(amount)
	if err != nil {
		return nil, err
	}

	data, err := a.client.PutMarketOrder(ctx, a.cfg.Market(), string(side), amount.String())
	if err != nil {
		return nil, err
	}

	price := decimal.Decimal{}
	if a.previousPrice != nil {
		price = *a.previousPrice
	}
	order, err := models.CreateFromExchange(a.cfg, a.payloadWithDefaults(data, side, amount, price))
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusExecuted
	order.Executed = time.Now().UTC()
	if err := a.orders.Save(a.cfg.Label, order); err != nil {
		return nil, err
	}
	a.logger.Info("Created market order",
		zap.String("order_id", order.OrderID),
		zap.String("side", string(side)),
		zap.String("amount", amount.String()))
	return order, nil
}

// CancelOrder cancels the order on the exchange. The local record is
// removed only after the exchange confirms; a rejected cancellation
// propagates.
func (a *API) CancelOrder(ctx context.Context, market, orderID string) (*models.Order, error) {
	data, err := a.client.CancelOrder(ctx, market, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	cancelled, err := a.orders.Get(a.cfg.Label, orderID)
	var notFound *store.OrderNotFoundError
	if errors.As(err, &notFound) {
		if cancelled, err = models.CreateFromExchange(a.cfg, orderPayload(*data)); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := a.orders.Delete(a.cfg.Label, orderID); err != nil {
		return nil, err
	}
	a.logger.Info("Cancelled order", zap.String("order_id", orderID))
	return cancelled, nil
}

// GetFilled retrieves the account's fills on the given side since the
// cursor, defaulting to the fill epoch when no cursor was saved yet.
func (a *API) GetFilled(ctx context.Context, side models.OrderType, since *time.Time) ([]models.Fill, error) {
	start := fillEpoch
	if since != nil {
		start = *since
	}

	deals, err := a.client.UserDeals(ctx, a.cfg.Market(), start.UnixMilli())
	if err != nil {
		return nil, err
	}

	var fills []models.Fill
	for _, deal := range deals {
		fill, err := models.FillFromPayload(models.FillPayload{
			DealID:    deal.DealID.String(),
			Amount:    deal.Amount,
			Price:     deal.Price,
			Side:      deal.Side,
			CreatedAt: deal.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		if fill.Side == side {
			fills = append(fills, fill)
		}
	}
	return fills, nil
}

// orderPayload lifts wire order data into the exchange-neutral payload.
func orderPayload(data OrderData) models.OrderPayload {
	return models.OrderPayload{
		OrderID:   data.OrderID.String(),
		Market:    data.Market,
		Side:      data.Side,
		Amount:    data.Amount,
		Price:     data.Price,
		CreatedAt: data.CreatedAt,
	}
}

// payloadWithDefaults fills gaps in an order-placement response from the
// request's own side, amount and price.
func (a *API) payloadWithDefaults(data *OrderData, side models.OrderType, amount, price decimal.Decimal) models.OrderPayload {
	payload := orderPayload(*data)
	if payload.Side == "" {
		payload.Side = string(side)
	}
	if payload.Amount == "" {
		payload.Amount = amount.String()
	}
	if payload.Price == "" {
		payload.Price = price.String()
	}
	if payload.Market == "" {
		payload.Market = a.cfg.Market()
	}
	return payload
}
