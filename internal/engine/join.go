package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinex-trade-bot-go/internal/models"
	"coinex-trade-bot-go/internal/money"
)

// JoinOrders consolidates two open sell orders into one: both are cancelled
// on the exchange, then a single sell for the combined amount is created at
// the amount-weighted average prices. The weighted sums are computed in
// full precision; only the final quotient is rounded.
func (e *Engine) JoinOrders(ctx context.Context, a, b *models.Order) (*models.Order, error) {
	if a.Type != models.OrderTypeSell || b.Type != models.OrderTypeSell {
		return nil, fmt.Errorf("can only join sell orders, got %s and %s", a.Type, b.Type)
	}
	if a.SellPrice == nil || b.SellPrice == nil {
		return nil, fmt.Errorf("cannot join orders %s and %s without sell prices", a.OrderID, b.OrderID)
	}

	if _, err := e.adapter.CancelOrder(ctx, a.Market, a.OrderID); err != nil {
		return nil, err
	}
	if _, err := e.adapter.CancelOrder(ctx, b.Market, b.OrderID); err != nil {
		return nil, err
	}

	amount := a.Amount.Add(b.Amount)
	sellPrice, err := e.weightedAverage(a, b, *a.SellPrice, *b.SellPrice)
	if err != nil {
		return nil, err
	}

	var buyPrice *decimal.Decimal
	if a.BuyPrice != nil && b.BuyPrice != nil {
		avg, err := e.weightedAverage(a, b, *a.BuyPrice, *b.BuyPrice)
		if err != nil {
			return nil, err
		}
		buyPrice = &avg
	}

	joined, err := e.adapter.CreateSellOrder(ctx, amount, sellPrice, buyPrice)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Joined sell orders",
		zap.String("first", a.OrderID),
		zap.String("second", b.OrderID),
		zap.String("joined", joined.OrderID),
		zap.String("amount", amount.String()),
		zap.String("sell_price", sellPrice.String()))
	return joined, nil
}

// weightedAverage is sum(amount_i * price_i) / sum(amount_i), rounded once
// at the market's price precision.
func (e *Engine) weightedAverage(a, b *models.Order, priceA, priceB decimal.Decimal) (decimal.Decimal, error) {
	weighted := a.Amount.Mul(priceA).Add(b.Amount.Mul(priceB))
	return e.cfg.RoundPrice(weighted.Div(a.Amount.Add(b.Amount)))
}

// maybeJoinSells joins the two closest open sell orders when their prices
// sit within the configured distance, reducing order-book clutter.
func (e *Engine) maybeJoinSells(ctx context.Context, pending []*models.Order) error {
	var sells []*models.Order
	for _, order := range pending {
		if order.Type == models.OrderTypeSell && order.SellPrice != nil {
			sells = append(sells, order)
		}
	}
	if len(sells) < 2 {
		return nil
	}

	distance := decimal.NewFromFloat(e.cfg.Trading.JoinDistancePct).Div(decimal.NewFromInt(100))
	for i := 0; i < len(sells); i++ {
		for j := i + 1; j < len(sells); j++ {
			a, b := sells[i], sells[j]
			gap := money.AbsDiff(*a.SellPrice, *b.SellPrice).Div(*a.SellPrice)
			if gap.LessThanOrEqual(distance) {
				_, err := e.JoinOrders(ctx, a, b)
				return err
			}
		}
	}
	return nil
}

// placeProfitSell re-offers a settled buy's amount at the configured profit
// margin over its buy price. The sell is deferred while it would dip into
// the reserve floor: the spendable amount above the reserve must cover the
// full position.
func (e *Engine) placeProfitSell(ctx context.Context, order *models.Order) error {
	margin := decimal.NewFromFloat(e.cfg.Trading.ProfitPercent).Div(decimal.NewFromInt(100))
	sellPrice, err := e.cfg.RoundPrice(order.BuyPrice.Mul(decimal.NewFromInt(1).Add(margin)))
	if err != nil {
		return err
	}

	spendable := e.ledger.SpendableAmount(sellPrice)
	if spendable.LessThan(order.Amount) {
		e.logger.Debug("Reserve floor defers the sell",
			zap.String("order_id", order.OrderID),
			zap.String("spendable", spendable.String()),
			zap.String("amount", order.Amount.String()))
		return nil
	}

	from, err := order.CurrencyFrom()
	if err != nil {
		return err
	}
	if err := e.ledger.Lock(from, order.Amount); err != nil {
		return err
	}
	if _, err := e.adapter.CreateSellOrder(ctx, order.Amount, sellPrice, order.BuyPrice); err != nil {
		if uerr := e.ledger.Unlock(from, order.Amount); uerr != nil {
			return fmt.Errorf("sell failed (%v) and unlock failed: %w", err, uerr)
		}
		return err
	}
	return nil
}

// maybeBuy places a limit buy at the current price when no buy order is
// open, the quote balance covers the minimum buy and spending it keeps the
// reserve floor intact.
func (e *Engine) maybeBuy(ctx context.Context, price models.Price, pending []*models.Order) error {
	for _, order := range pending {
		if order.Type == models.OrderTypeBuy {
			return nil
		}
	}

	amount, err := e.cfg.MinBuyAmount(price.Price)
	if err != nil {
		return err
	}
	cost := e.cfg.RoundAmountByCurrency(amount.Mul(price.Price), e.cfg.CurrencyTo())

	quote, err := e.ledger.Get(e.cfg.CurrencyTo())
	if err != nil {
		return err
	}
	if quote.Available.LessThan(cost) {
		e.logger.Debug("Not enough quote balance for a buy",
			zap.String("available", quote.Available.String()),
			zap.String("cost", cost.String()))
		return nil
	}

	// The lock precedes the exchange call; a failed placement unlocks.
	if err := e.ledger.Lock(e.cfg.CurrencyTo(), cost); err != nil {
		return err
	}
	if _, err := e.adapter.CreateBuyOrder(ctx, amount, price.Price); err != nil {
		if uerr := e.ledger.Unlock(e.cfg.CurrencyTo(), cost); uerr != nil {
			return fmt.Errorf("buy failed (%v) and unlock failed: %w", err, uerr)
		}
		return err
	}
	return nil
}
