package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinex-trade-bot-go/internal/models"
)

// OrderNotFoundError distinguishes "not yet known locally" from storage
// failures; reconciliation relies on it to decide insert vs reuse.
type OrderNotFoundError struct {
	Bot     string
	OrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found for bot %s", e.OrderID, e.Bot)
}

// DbOrder is the stored form of models.Order. Decimals are persisted as
// strings to keep precision; the (bot, status, executed) index backs the
// status range queries.
type DbOrder struct {
	Bot       string `gorm:"primaryKey;size:64"`
	OrderID   string `gorm:"primaryKey;size:255;column:order_id"`
	Created   time.Time
	Executed  time.Time     `gorm:"index:idx_bot_status_executed,priority:3"`
	Type      string        `gorm:"size:8"`
	BuyPrice  *string       `gorm:"size:64"`
	SellPrice *string       `gorm:"size:64"`
	Status    string        `gorm:"size:16;index:idx_bot_status_executed,priority:2"`
	Amount    string        `gorm:"size:64"`
	Fills     []models.Fill `gorm:"serializer:json"`
	Benefit   *string       `gorm:"size:64"`
	Market    string        `gorm:"size:32"`
}

func (DbOrder) TableName() string { return "orders" }

func newDbOrder(bot string, order *models.Order) *DbOrder {
	return &DbOrder{
		Bot:       bot,
		OrderID:   order.OrderID,
		Created:   order.Created,
		Executed:  order.ExecutedAt(),
		Type:      string(order.Type),
		BuyPrice:  decimalPtrToString(order.BuyPrice),
		SellPrice: decimalPtrToString(order.SellPrice),
		Status:    string(order.Status),
		Amount:    order.Amount.String(),
		Fills:     order.Fills,
		Benefit:   decimalPtrToString(order.Benefit),
		Market:    order.Market,
	}
}

// ToOrder maps the stored row back to the canonical Order. Malformed stored
// values surface as parsing errors naming the field.
func (d *DbOrder) ToOrder() (*models.Order, error) {
	orderType, err := models.ParseOrderType(d.Type)
	if err != nil {
		return nil, err
	}
	status, err := models.ParseOrderStatus(d.Status)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("malformed stored amount for order %s: %w", d.OrderID, err)
	}
	buyPrice, err := stringPtrToDecimal(d.BuyPrice, "buy_price", d.OrderID)
	if err != nil {
		return nil, err
	}
	sellPrice, err := stringPtrToDecimal(d.SellPrice, "sell_price", d.OrderID)
	if err != nil {
		return nil, err
	}
	benefit, err := stringPtrToDecimal(d.Benefit, "benefit", d.OrderID)
	if err != nil {
		return nil, err
	}

	return &models.Order{
		OrderID:   d.OrderID,
		Created:   d.Created,
		Executed:  d.Executed,
		Type:      orderType,
		BuyPrice:  buyPrice,
		SellPrice: sellPrice,
		Status:    status,
		Amount:    amount,
		Fills:     d.Fills,
		Benefit:   benefit,
		Market:    d.Market,
	}, nil
}

func decimalPtrToString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func stringPtrToDecimal(s *string, field, orderID string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("malformed stored %s for order %s: %w", field, orderID, err)
	}
	return &d, nil
}

// OrderRepository is the keyed order store with a secondary index for
// status + execution-time range queries.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save upserts the order, keyed by (bot, order_id). Saving the same order
// twice keeps the latest field values, never a duplicate row.
func (r *OrderRepository) Save(bot string, order *models.Order) error {
	row := newDbOrder(bot, order)
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot"}, {Name: "order_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
	}
	return nil
}

// Get returns the order or OrderNotFoundError.
func (r *OrderRepository) Get(bot, orderID string) (*models.Order, error) {
	var row DbOrder
	err := r.db.Where("bot = ? AND order_id = ?", bot, orderID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &OrderNotFoundError{Bot: bot, OrderID: orderID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return row.ToOrder()
}

// Delete removes the order, e.g. on confirmed cancellation. Deleting a
// missing order is not an error.
func (r *OrderRepository) Delete(bot, orderID string) error {
	err := r.db.Where("bot = ? AND order_id = ?", bot, orderID).Delete(&DbOrder{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	return nil
}

// QueryByStatus ranges over the (bot, status, executed) index. The window
// is [from, to): from inclusive, to exclusive; either side may be open.
// Ties on executed break on order_id so ordering is stable.
func (r *OrderRepository) QueryByStatus(bot string, status models.OrderStatus, from, to *time.Time, limit int, ascending bool) ([]*models.Order, error) {
	q := r.db.Where("bot = ? AND status = ?", bot, string(status))
	if from != nil {
		q = q.Where("executed >= ?", *from)
	}
	if to != nil {
		q = q.Where("executed < ?", *to)
	}
	direction := "ASC"
	if !ascending {
		direction = "DESC"
	}
	q = q.Order("executed " + direction).Order("order_id " + direction)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []DbOrder
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query orders by status %s: %w", status, err)
	}

	orders := make([]*models.Order, 0, len(rows))
	for i := range rows {
		order, err := rows[i].ToOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
