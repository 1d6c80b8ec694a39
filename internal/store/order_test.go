package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coinex-trade-bot-go/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testOrder(orderID string, status models.OrderStatus, executed time.Time) *models.Order {
	return &models.Order{
		OrderID:   orderID,
		Created:   executed.Add(-time.Hour),
		Executed:  executed,
		Type:      models.OrderTypeSell,
		BuyPrice:  decPtr("0.5"),
		SellPrice: decPtr("0.6"),
		Status:    status,
		Amount:    dec("100"),
		Market:    "ADAUSDT",
	}
}

func TestOrderRepository_SaveGetDelete(t *testing.T) {
	repo := NewOrderRepository(testDB(t))
	executed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	order := testOrder("13", models.OrderStatusInitial, executed)
	order.Fills = []models.Fill{{FillID: "f1", Amount: dec("100"), Price: dec("0.6"), Side: models.OrderTypeSell, Date: executed}}
	require.NoError(t, repo.Save("ADA1", order))

	got, err := repo.Get("ADA1", "13")
	require.NoError(t, err)
	assert.Equal(t, "13", got.OrderID)
	assert.Equal(t, models.OrderTypeSell, got.Type)
	assert.True(t, got.Amount.Equal(dec("100")))
	assert.True(t, got.BuyPrice.Equal(dec("0.5")))
	assert.True(t, got.SellPrice.Equal(dec("0.6")))
	require.Len(t, got.Fills, 1)
	assert.Equal(t, "f1", got.Fills[0].FillID)

	// Another bot does not see the order.
	_, err = repo.Get("ADA2", "13")
	var nerr *OrderNotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "ADA2", nerr.Bot)

	require.NoError(t, repo.Delete("ADA1", "13"))
	_, err = repo.Get("ADA1", "13")
	assert.ErrorAs(t, err, &nerr)

	// Deleting again is a no-op.
	assert.NoError(t, repo.Delete("ADA1", "13"))
}

func TestOrderRepository_SaveIsUpsert(t *testing.T) {
	repo := NewOrderRepository(testDB(t))
	executed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	order := testOrder("7", models.OrderStatusInitial, executed)
	require.NoError(t, repo.Save("ADA1", order))

	order.Status = models.OrderStatusExecuted
	order.Benefit = decPtr("10")
	require.NoError(t, repo.Save("ADA1", order))

	got, err := repo.Get("ADA1", "7")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, got.Status)
	require.NotNil(t, got.Benefit)
	assert.True(t, got.Benefit.Equal(dec("10")))

	orders, err := repo.QueryByStatus("ADA1", models.OrderStatusExecuted, nil, nil, 0, true)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrderRepository_QueryByStatus(t *testing.T) {
	repo := NewOrderRepository(testDB(t))

	// Ten days, one initial and one executed order per day.
	for day := 1; day <= 10; day++ {
		executed := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Save("ADA1", testOrder(fmt.Sprintf("i-%02d", day), models.OrderStatusInitial, executed)))
		require.NoError(t, repo.Save("ADA1", testOrder(fmt.Sprintf("e-%02d", day), models.OrderStatusExecuted, executed)))
	}

	from := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	// [from, to): days 5, 6, 7 and 8.
	orders, err := repo.QueryByStatus("ADA1", models.OrderStatusExecuted, &from, &to, 0, true)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	assert.Equal(t, "e-05", orders[0].OrderID)
	assert.Equal(t, "e-08", orders[3].OrderID)

	// Descending returns the newest of the window first.
	orders, err = repo.QueryByStatus("ADA1", models.OrderStatusExecuted, &from, &to, 0, false)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	assert.Equal(t, "e-08", orders[0].OrderID)

	// Limit caps the result after ordering.
	orders, err = repo.QueryByStatus("ADA1", models.OrderStatusExecuted, &from, &to, 1, false)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "e-08", orders[0].OrderID)

	// Open-ended window.
	orders, err = repo.QueryByStatus("ADA1", models.OrderStatusInitial, nil, nil, 0, true)
	require.NoError(t, err)
	assert.Len(t, orders, 10)

	// Empty window.
	emptyTo := from
	orders, err = repo.QueryByStatus("ADA1", models.OrderStatusExecuted, &from, &emptyTo, 0, true)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
