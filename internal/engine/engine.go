// Package engine drives the order lifecycle: fetch price, reconcile
// exchange state with the local store, settle executions, maintain the
// balance ledger and append completed actions to the executed log.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinex-trade-bot-go/internal/config"
	"coinex-trade-bot-go/internal/exchange"
	"coinex-trade-bot-go/internal/ledger"
	"coinex-trade-bot-go/internal/models"
	"coinex-trade-bot-go/internal/store"
)

// Engine is the single writer for one bot and market. One logical thread
// drives fetch -> reconcile -> act -> persist; a cycle that fails is logged
// and the next tick starts fresh.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	adapter  exchange.Adapter
	orders   *store.OrderRepository
	executed *store.ExecutedRepository
	cursors  *store.FillCursorRepository
	ledger   *ledger.Ledger
}

// New creates an engine wired to its collaborators. The adapter is an
// explicit dependency-injected handle; there is no global exchange state.
func New(logger *zap.Logger, cfg *config.Config, adapter exchange.Adapter, db Collaborators) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		adapter:  adapter,
		orders:   db.Orders,
		executed: db.Executed,
		cursors:  db.Cursors,
		ledger:   ledger.New(cfg.CurrencyFrom(), cfg.ReserveUSDT()),
	}
}

// Collaborators bundles the repositories the engine writes through.
type Collaborators struct {
	Orders   *store.OrderRepository
	Executed *store.ExecutedRepository
	Cursors  *store.FillCursorRepository
}

// Ledger exposes the engine's balance ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Run starts the engine's main loop, ticking until the context is
// cancelled. Cycle errors do not stop the loop.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop",
		zap.String("market", e.cfg.Market()),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping engine...")
			return
		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil {
				e.logger.Error("Cycle failed", zap.Error(err))
			}
		}
	}
}

// Cycle runs one round: fetch the price, refresh balances, reconcile
// pending orders, settle executions, then consider placing or joining
// orders.
func (e *Engine) Cycle(ctx context.Context) error {
	price, err := e.adapter.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch price: %w", err)
	}

	balances, err := e.adapter.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch balances: %w", err)
	}
	e.ledger.SetBalances(balances)

	pending, err := e.adapter.OrderPending(ctx, e.cfg.Market())
	if err != nil {
		return fmt.Errorf("could not reconcile pending orders: %w", err)
	}

	if err := e.SettleExecuted(ctx, pending, price); err != nil {
		return err
	}

	if err := e.maybeJoinSells(ctx, pending); err != nil {
		return err
	}

	return e.maybeBuy(ctx, price, pending)
}

// SettleExecuted finds local open orders the exchange no longer reports as
// pending, confirms their execution against the fill stream, and settles
// them: status transition, balance movements, benefit, executed-log append
// and fill-cursor advance. Orders without matching fills are left alone;
// the next reconciliation pass picks them up again.
func (e *Engine) SettleExecuted(ctx context.Context, pending []*models.Order, price models.Price) error {
	pendingIDs := map[string]struct{}{}
	for _, order := range pending {
		pendingIDs[order.OrderID] = struct{}{}
	}

	locals, err := e.orders.QueryByStatus(e.cfg.Label, models.OrderStatusInitial, nil, nil, 0, true)
	if err != nil {
		return err
	}

	cursor, err := e.cursors.Get(e.cfg.Label)
	if err != nil {
		return err
	}
	// Every lookup in this pass starts from the cursor as it was saved;
	// advancing it mid-pass would hide fills from orders not yet visited.
	since := map[models.OrderType]*time.Time{
		models.OrderTypeBuy:  cursor.BuyDate,
		models.OrderTypeSell: cursor.SellDate,
	}

	settled := map[models.OrderType][]models.Fill{}
	unsettled := map[models.OrderType]bool{}
	for _, order := range locals {
		if _, open := pendingIDs[order.OrderID]; open {
			unsettled[order.Type] = true
			continue
		}

		fills, err := e.fillsForOrder(ctx, order, since[order.Type])
		if err != nil {
			return err
		}
		if !covered(order, fills) {
			// Not confirmed executed yet; heal on a later pass.
			unsettled[order.Type] = true
			continue
		}

		if err := e.settleOrder(ctx, order, fills); err != nil {
			return err
		}
		settled[order.Type] = append(settled[order.Type], fills...)
	}

	// The cursor may only pass fills no open order of the side can still
	// claim, so a side advances once none of its orders remain unsettled.
	var advanced bool
	for side, fills := range settled {
		if unsettled[side] {
			continue
		}
		advanceCursor(cursor, side, fills)
		advanced = true
	}
	if advanced {
		return e.cursors.Save(cursor)
	}
	return nil
}

// fillsForOrder retrieves the fill stream for the order's side since the
// given cursor date and keeps the fills at the order's price.
func (e *Engine) fillsForOrder(ctx context.Context, order *models.Order, since *time.Time) ([]models.Fill, error) {
	fills, err := e.adapter.GetFilled(ctx, order.Type, since)
	if err != nil {
		return nil, err
	}

	orderPrice := order.Price()
	if orderPrice == nil {
		return nil, nil
	}
	var matched []models.Fill
	for _, fill := range fills {
		if fill.Price.Equal(*orderPrice) {
			matched = append(matched, fill)
		}
	}
	return matched, nil
}

// covered reports whether the fills add up to the order's full amount.
func covered(order *models.Order, fills []models.Fill) bool {
	total := decimal.Decimal{}
	for _, fill := range fills {
		total = total.Add(fill.Amount)
	}
	return total.GreaterThanOrEqual(order.Amount)
}

// settleOrder applies one executed order to the ledger and the store.
//
// For a buy, the quote leg was locked at placement: unlock it, debit it,
// credit the base leg. For a sell, the base leg was locked: unlock it,
// debit it, credit the quote leg and realize the benefit.
func (e *Engine) settleOrder(ctx context.Context, order *models.Order, fills []models.Fill) error {
	if order.Price() == nil {
		field := "buy_price"
		if order.Type == models.OrderTypeSell {
			field = "sell_price"
		}
		return &models.PayloadError{Field: field}
	}
	from, err := order.CurrencyFrom()
	if err != nil {
		return err
	}
	to, err := order.CurrencyTo()
	if err != nil {
		return err
	}

	switch order.Type {
	case models.OrderTypeBuy:
		cost := e.cfg.RoundAmountByCurrency(order.Amount.Mul(*order.BuyPrice), to)
		if err := e.ledger.Unlock(to, cost); err != nil {
			return err
		}
		if err := e.ledger.Dec(to, cost); err != nil {
			return err
		}
		if err := e.ledger.Inc(from, order.Amount); err != nil {
			return err
		}

	case models.OrderTypeSell:
		if err := e.ledger.Unlock(from, order.Amount); err != nil {
			return err
		}
		if err := e.ledger.Dec(from, order.Amount); err != nil {
			return err
		}
		proceeds := e.cfg.RoundAmountByCurrency(order.Amount.Mul(*order.SellPrice), to)
		if err := e.ledger.Inc(to, proceeds); err != nil {
			return err
		}
		if order.BuyPrice != nil {
			benefit := e.cfg.RoundAmountByCurrency(
				order.SellPrice.Sub(*order.BuyPrice).Mul(order.Amount), to)
			order.Benefit = &benefit
		}
	}

	order.Status = models.OrderStatusExecuted
	order.Executed = latestFillDate(fills)
	order.Fills = append(order.Fills, fills...)
	if err := e.orders.Save(e.cfg.Label, order); err != nil {
		return err
	}

	if err := e.appendToExecutedLog(order, models.MarketOrderType(order.Type)); err != nil {
		return err
	}

	e.logger.Info("Settled executed order",
		zap.String("order_id", order.OrderID),
		zap.String("side", string(order.Type)),
		zap.String("amount", order.Amount.String()))

	if order.Type == models.OrderTypeBuy {
		return e.placeProfitSell(ctx, order)
	}
	return nil
}

func latestFillDate(fills []models.Fill) time.Time {
	var latest time.Time
	for _, fill := range fills {
		if fill.Date.After(latest) {
			latest = fill.Date
		}
	}
	if latest.IsZero() {
		latest = time.Now().UTC()
	}
	return latest
}

// advanceCursor records the newest fill per side so the next retrieval
// resumes after it.
func advanceCursor(cursor *store.FillCursor, side models.OrderType, fills []models.Fill) {
	if len(fills) == 0 {
		return
	}
	newest := fills[0]
	for _, fill := range fills[1:] {
		if fill.Date.After(newest.Date) {
			newest = fill
		}
	}
	id, date := newest.FillID, newest.Date
	switch side {
	case models.OrderTypeBuy:
		cursor.BuyFillID = &id
		cursor.BuyDate = &date
	case models.OrderTypeSell:
		cursor.SellFillID = &id
		cursor.SellDate = &date
	}
}

// ExecuteMarketOrder places a market order and books it into the day's
// executed log immediately; there is no pending step for market orders.
func (e *Engine) ExecuteMarketOrder(ctx context.Context, side models.OrderType, amount decimal.Decimal) (*models.Order, error) {
	order, err := e.adapter.CreateMarketOrder(ctx, side, amount)
	if err != nil {
		return nil, err
	}
	if err := e.appendToExecutedLog(order, models.MarketOrderType(side)); err != nil {
		return nil, err
	}
	return order, nil
}

// appendToExecutedLog loads (or creates) the day's aggregate, appends the
// order and persists right away.
func (e *Engine) appendToExecutedLog(order *models.Order, side models.MarketOrderType) error {
	day := order.ExecutedAt().UTC().Truncate(24 * time.Hour)
	executed, err := store.LoadDay(e.executed, e.cfg.Label, day, e.cfg.Trading.ExecutedPageSize)
	if err != nil {
		return err
	}
	if _, err := executed.AddExecutedOrder(order, side); err != nil {
		return err
	}
	return executed.Save()
}
