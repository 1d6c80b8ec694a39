package coinex

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinex-trade-bot-go/internal/config"
	"coinex-trade-bot-go/internal/models"
	"coinex-trade-bot-go/internal/store"
)

// fakeClient is a canned ClientAPI for adapter tests.
type fakeClient struct {
	prices    []string
	priceIdx  int
	balances  map[string]BalanceData
	balancesE error
	pending   []OrderData
	deals     []DealData
	dealsFrom int64
	cancelErr error
	cancelled []string
	nextID    int64
}

func (f *fakeClient) MarketDeals(_ context.Context, _ string, _ int) ([]MarketDeal, error) {
	if f.priceIdx >= len(f.prices) {
		return nil, nil
	}
	price := f.prices[f.priceIdx]
	f.priceIdx++
	return []MarketDeal{{DealID: int64(f.priceIdx), CreatedAt: time.Now().UnixMilli(), Price: price, Amount: "1"}}, nil
}

func (f *fakeClient) BalanceInfo(_ context.Context) (map[string]BalanceData, error) {
	return f.balances, f.balancesE
}

func (f *fakeClient) OrderPending(_ context.Context, _ string) ([]OrderData, error) {
	return f.pending, nil
}

func (f *fakeClient) placeOrder(market, side, amount, price string) *OrderData {
	f.nextID++
	return &OrderData{
		OrderID:   json.Number(strconv.FormatInt(f.nextID, 10)),
		Market:    market,
		Side:      side,
		Amount:    amount,
		Price:     price,
		CreatedAt: time.Now().UnixMilli(),
	}
}

func (f *fakeClient) PutLimitOrder(_ context.Context, market, side, amount, price string) (*OrderData, error) {
	return f.placeOrder(market, side, amount, price), nil
}

func (f *fakeClient) PutMarketOrder(_ context.Context, market, side, amount string) (*OrderData, error) {
	return f.placeOrder(market, side, amount, ""), nil
}

func (f *fakeClient) CancelOrder(_ context.Context, market, orderID string) (*OrderData, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return &OrderData{OrderID: json.Number(orderID), Market: market, Side: "sell", Amount: "1", Price: "1"}, nil
}

func (f *fakeClient) UserDeals(_ context.Context, _ string, startTime int64) ([]DealData, error) {
	f.dealsFrom = startTime
	return f.deals, nil
}

func apiConfig() *config.Config {
	return &config.Config{
		Label:    "ADA1",
		Exchange: "coinex",
		Pair:     "ADA/USDT",
		Decimals: config.ExchangeDecimals{Pairs: map[string]config.MarketPrecision{
			"ADAUSDT": {Price: 4, Amount: 6},
		}},
	}
}

func newTestAPI(t *testing.T, client *fakeClient) (*API, *store.OrderRepository) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	orders := store.NewOrderRepository(db)
	api := NewAPI(apiConfig(), client, orders, zap.NewNop())
	api.pollInterval = time.Millisecond
	return api, orders
}

func TestFetchPrice_SkipsUnchangedPrice(t *testing.T) {
	client := &fakeClient{prices: []string{"0.5", "0.5", "0.51"}}
	api, _ := newTestAPI(t, client)

	price, err := api.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5", price.Price.String())
	assert.False(t, price.Date.IsZero())

	// The second fetch polls past the repeated 0.5.
	price, err = api.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.51", price.Price.String())
	assert.Equal(t, 3, client.priceIdx)
}

func TestFetchPrice_ContextCancelled(t *testing.T) {
	api, _ := newTestAPI(t, &fakeClient{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := api.FetchPrice(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchCurrencyPrice(t *testing.T) {
	client := &fakeClient{prices: []string{"65000.12345"}}
	api, _ := newTestAPI(t, client)

	price, err := api.FetchCurrencyPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "65000.1235", price.String())

	// A market with no deals yields a zero price, not an error.
	price, err = api.FetchCurrencyPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestGetBalances(t *testing.T) {
	client := &fakeClient{balances: map[string]BalanceData{
		"ADA": {Ccy: "ADA", Available: "100", Frozen: "5"},
	}}
	api, _ := newTestAPI(t, client)

	balances, err := api.GetBalances(context.Background())
	require.NoError(t, err)

	// Available includes frozen; locked mirrors frozen.
	ada := balances["ADA"]
	require.NotNil(t, ada)
	assert.True(t, ada.Available.Equal(decimal.RequireFromString("105")))
	assert.True(t, ada.Locked.Equal(decimal.RequireFromString("5")))

	// Unreported tracked currencies default to zero.
	for _, ccy := range []string{"USDT", "BTC", "USDC"} {
		require.NotNil(t, balances[ccy], ccy)
		assert.True(t, balances[ccy].Available.IsZero(), ccy)
	}
}

func TestGetBalances_Error(t *testing.T) {
	client := &fakeClient{balancesE: errors.New("boom")}
	api, _ := newTestAPI(t, client)

	_, err := api.GetBalances(context.Background())
	var ferr *FetchBalanceError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorContains(t, err, "boom")
}

func TestOrderPending_Reconciliation(t *testing.T) {
	client := &fakeClient{pending: []OrderData{
		{OrderID: "1", Market: "ADAUSDT", Side: "sell", Amount: "100", Price: "0.6", CreatedAt: time.Now().UnixMilli()},
		{OrderID: "2", Market: "ADAUSDT", Side: "buy", Amount: "200", Price: "0.4", CreatedAt: time.Now().UnixMilli()},
	}}
	api, orders := newTestAPI(t, client)

	// Order 1 is already known locally with its buy price attached.
	buyPrice := decimal.RequireFromString("0.5")
	sellPrice := decimal.RequireFromString("0.6")
	require.NoError(t, orders.Save("ADA1", &models.Order{
		OrderID:   "1",
		Created:   time.Now().UTC(),
		Type:      models.OrderTypeSell,
		BuyPrice:  &buyPrice,
		SellPrice: &sellPrice,
		Status:    models.OrderStatusInitial,
		Amount:    decimal.RequireFromString("100"),
		Market:    "ADAUSDT",
	}))

	result, err := api.OrderPending(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	require.Len(t, result, 2)

	// The local record wins for the known id.
	require.NotNil(t, result[0].BuyPrice)
	assert.True(t, result[0].BuyPrice.Equal(buyPrice))

	// The unknown id was built from the exchange payload and persisted.
	persisted, err := orders.Get("ADA1", "2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeBuy, persisted.Type)

	// A second pass converges: same two orders, no duplicates.
	again, err := api.OrderPending(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestCreateBuyOrder(t *testing.T) {
	api, orders := newTestAPI(t, &fakeClient{})

	order, err := api.CreateBuyOrder(context.Background(), decimal.RequireFromString("400"), decimal.RequireFromString("0.12345"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderTypeBuy, order.Type)
	assert.Equal(t, models.OrderStatusInitial, order.Status)
	require.NotNil(t, order.BuyPrice)
	// The price was rounded up at the market precision before placing.
	assert.Equal(t, "0.1235", order.BuyPrice.String())
	assert.Nil(t, order.SellPrice)

	persisted, err := orders.Get("ADA1", order.OrderID)
	require.NoError(t, err)
	assert.True(t, persisted.Amount.Equal(decimal.RequireFromString("400")))
}

func TestCreateSellOrder_CarriesBuyPrice(t *testing.T) {
	api, orders := newTestAPI(t, &fakeClient{})

	buyPrice := decimal.RequireFromString("0.41239")
	order, err := api.CreateSellOrder(context.Background(), decimal.RequireFromString("100"), decimal.RequireFromString("0.6"), &buyPrice)
	require.NoError(t, err)

	assert.Equal(t, models.OrderTypeSell, order.Type)
	require.NotNil(t, order.SellPrice)
	assert.Equal(t, "0.6", order.SellPrice.String())
	require.NotNil(t, order.BuyPrice)
	assert.Equal(t, "0.4124", order.BuyPrice.String())

	persisted, err := orders.Get("ADA1", order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, persisted.BuyPrice)
	assert.Equal(t, "0.4124", persisted.BuyPrice.String())
}

func TestCreateMarketOrder_IsExecuted(t *testing.T) {
	client := &fakeClient{prices: []string{"0.5"}}
	api, orders := newTestAPI(t, client)

	// Prime the price so the market order has one to record.
	_, err := api.FetchPrice(context.Background())
	require.NoError(t, err)

	order, err := api.CreateMarketOrder(context.Background(), models.OrderTypeSell, decimal.RequireFromString("100"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusExecuted, order.Status)
	assert.False(t, order.Executed.IsZero())
	require.NotNil(t, order.SellPrice)
	assert.Equal(t, "0.5", order.SellPrice.String())

	persisted, err := orders.Get("ADA1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, persisted.Status)
}

func TestCancelOrder(t *testing.T) {
	client := &fakeClient{}
	api, orders := newTestAPI(t, client)

	order, err := api.CreateBuyOrder(context.Background(), decimal.RequireFromString("100"), decimal.RequireFromString("0.5"))
	require.NoError(t, err)

	cancelled, err := api.CancelOrder(context.Background(), "ADAUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, cancelled.OrderID)
	assert.Equal(t, []string{order.OrderID}, client.cancelled)

	_, err = orders.Get("ADA1", order.OrderID)
	var nerr *store.OrderNotFoundError
	assert.ErrorAs(t, err, &nerr)
}

func TestCancelOrder_RejectedKeepsLocalRecord(t *testing.T) {
	client := &fakeClient{}
	api, orders := newTestAPI(t, client)

	order, err := api.CreateBuyOrder(context.Background(), decimal.RequireFromString("100"), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	client.cancelErr = errors.New("order finished")

	_, err = api.CancelOrder(context.Background(), "ADAUSDT", order.OrderID)
	require.Error(t, err)

	// The local record stays until the exchange confirms the cancellation.
	_, err = orders.Get("ADA1", order.OrderID)
	assert.NoError(t, err)
}

func TestGetFilled(t *testing.T) {
	client := &fakeClient{deals: []DealData{
		{DealID: "1", OrderID: "10", Side: "buy", Price: "0.5", Amount: "100", CreatedAt: 1704070800000},
		{DealID: "2", OrderID: "11", Side: "sell", Price: "0.6", Amount: "50", CreatedAt: 1704074400000},
	}}
	api, _ := newTestAPI(t, client)

	// No cursor: retrieval starts at the fill epoch.
	fills, err := api.GetFilled(context.Background(), models.OrderTypeBuy, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), client.dealsFrom)

	// Only the requested side comes back.
	require.Len(t, fills, 1)
	assert.Equal(t, "1", fills[0].FillID)
	assert.Equal(t, models.OrderTypeBuy, fills[0].Side)

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = api.GetFilled(context.Background(), models.OrderTypeSell, &since)
	require.NoError(t, err)
	assert.Equal(t, since.UnixMilli(), client.dealsFrom)
}
