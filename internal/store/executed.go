package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinex-trade-bot-go/internal/models"
)

// DefaultPageSize caps how many executed orders one stored page holds,
// bounding the size of any single row while keeping day scans cheap.
const DefaultPageSize = 1000

const dayFormat = "2006-01-02"

// ExecutedOrder is one completed market action, recorded for benefit
// accounting and audit.
type ExecutedOrder struct {
	OrderID  string                 `json:"order_id"`
	Side     models.MarketOrderType `json:"side"`
	Amount   decimal.Decimal        `json:"amount"`
	Price    decimal.Decimal        `json:"price"`
	Benefit  *decimal.Decimal       `json:"benefit,omitempty"`
	Created  time.Time              `json:"created"`
	Executed time.Time              `json:"executed"`
}

// ExecutedPage is one physical page of the append-only executed log,
// keyed by (bot, date) and partitioned by calendar day.
type ExecutedPage struct {
	Bot      string          `gorm:"primaryKey;size:64"`
	Date     time.Time       `gorm:"primaryKey;index:idx_bot_day_date,priority:3"`
	Day      string          `gorm:"size:10;index:idx_bot_day_date,priority:2"`
	Orders   []ExecutedOrder `gorm:"serializer:json"`
	PageSize int
}

func (ExecutedPage) TableName() string { return "executed_pages" }

// IsFull reports whether the page reached its capacity; appends must roll
// over to a fresh page first.
func (p *ExecutedPage) IsFull() bool {
	return len(p.Orders) >= p.PageSize
}

// ExecutedRepository persists executed-log pages.
type ExecutedRepository struct {
	db *gorm.DB
}

func NewExecutedRepository(db *gorm.DB) *ExecutedRepository {
	return &ExecutedRepository{db: db}
}

// SavePage upserts one page, keyed by (bot, date).
func (r *ExecutedRepository) SavePage(page *ExecutedPage) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(page).Error
	if err != nil {
		return fmt.Errorf("failed to save executed page %s/%s: %w", page.Bot, page.Date, err)
	}
	return nil
}

// QueryPagesByDay returns all pages for a calendar day in date order.
func (r *ExecutedRepository) QueryPagesByDay(bot string, day time.Time) ([]*ExecutedPage, error) {
	var pages []*ExecutedPage
	err := r.db.
		Where("bot = ? AND day = ?", bot, day.UTC().Format(dayFormat)).
		Order("date ASC").
		Find(&pages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query executed pages for day %s: %w", day.Format(dayFormat), err)
	}
	return pages, nil
}

// Executed is the logical executed log for one day: a sequence of pages
// where only the last one is still growing. Pages are persisted at rollover
// time; Save flushes the current page.
type Executed struct {
	repo     *ExecutedRepository
	bot      string
	day      string
	pages    []*ExecutedPage
	pageSize int
}

// LoadDay loads all existing pages for the day, or seeds a single empty
// page stamped at the given time when none exist. pageSize <= 0 selects
// DefaultPageSize.
func LoadDay(repo *ExecutedRepository, bot string, day time.Time, pageSize int) (*Executed, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages, err := repo.QueryPagesByDay(bot, day)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		pages = []*ExecutedPage{{
			Bot:      bot,
			Date:     day.UTC(),
			Day:      day.UTC().Format(dayFormat),
			PageSize: pageSize,
		}}
	}
	return &Executed{
		repo:     repo,
		bot:      bot,
		day:      day.UTC().Format(dayFormat),
		pages:    pages,
		pageSize: pageSize,
	}, nil
}

// AddExecutedOrder appends the order to the current page. A full page is
// persisted first, then a new page is allocated one minute after it, which
// keeps page keys strictly increasing without a sequence counter.
func (e *Executed) AddExecutedOrder(order *models.Order, side models.MarketOrderType) (*ExecutedOrder, error) {
	current := e.pages[len(e.pages)-1]
	if current.IsFull() {
		if err := e.repo.SavePage(current); err != nil {
			return nil, err
		}
		next := &ExecutedPage{
			Bot:      e.bot,
			Date:     current.Date.Add(time.Minute),
			Day:      e.day,
			PageSize: e.pageSize,
		}
		e.pages = append(e.pages, next)
		current = next
	}

	var price decimal.Decimal
	if p := order.Price(); p != nil {
		price = *p
	}
	executed := ExecutedOrder{
		OrderID:  order.OrderID,
		Side:     side,
		Amount:   order.Amount,
		Price:    price,
		Benefit:  order.Benefit,
		Created:  order.Created,
		Executed: order.ExecutedAt(),
	}
	current.Orders = append(current.Orders, executed)
	return &current.Orders[len(current.Orders)-1], nil
}

// Save persists the current (last) page. Earlier pages were already saved
// when they rolled over.
func (e *Executed) Save() error {
	return e.repo.SavePage(e.pages[len(e.pages)-1])
}

// Pages exposes the in-memory pages, oldest first.
func (e *Executed) Pages() []*ExecutedPage {
	return e.pages
}

// Orders flattens the day's pages into one ordered list.
func (e *Executed) Orders() []ExecutedOrder {
	var out []ExecutedOrder
	for _, page := range e.pages {
		out = append(out, page.Orders...)
	}
	return out
}

// QueryByDay loads and flattens every persisted executed order for the day.
func QueryByDay(repo *ExecutedRepository, bot string, day time.Time) ([]ExecutedOrder, error) {
	pages, err := repo.QueryPagesByDay(bot, day)
	if err != nil {
		return nil, err
	}
	var out []ExecutedOrder
	for _, page := range pages {
		out = append(out, page.Orders...)
	}
	return out, nil
}
