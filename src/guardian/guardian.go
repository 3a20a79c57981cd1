// Package guardian runs the fast, rule-based protection loop: it
// enforces stop-loss, take-profit and trailing-stop exits on open
// positions without ever consulting the reasoning service.
package guardian

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/gateway"
	"tradesentinel/src/ledger"
	"tradesentinel/src/model"
	"tradesentinel/src/notify"
	"tradesentinel/src/risk"
)

// failureAlarmThreshold is the number of consecutive gateway failures
// after which the loop escalates its log level: protection may be
// offline.
const failureAlarmThreshold = 3

// Guardian is the protective-exit loop.
type Guardian struct {
	gateway  *gateway.Service
	ledger   *ledger.Service
	risk     *risk.Manager
	notifier *notify.Notifier

	inProgress          atomic.Bool
	consecutiveFailures int
}

// New creates a guardian.
func New(gw *gateway.Service, led *ledger.Service, riskMgr *risk.Manager, notifier *notify.Notifier) *Guardian {
	return &Guardian{
		gateway:  gw,
		ledger:   led,
		risk:     riskMgr,
		notifier: notifier,
	}
}

// Start runs the loop until ctx is canceled. A tick that is still in
// flight when the timer fires again is never overlapped; the new tick
// is skipped instead.
func (g *Guardian) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval).Info("Guardian loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Guardian loop stopped")
			return
		case <-ticker.C:
			if !g.inProgress.CompareAndSwap(false, true) {
				logger.Warn("Guardian tick still in progress, skipping")
				continue
			}
			g.tickSafe(ctx)
			g.inProgress.Store(false)
		}
	}
}

// tickSafe runs one tick and converts any failure into a skipped tick.
// The loop never crashes the process.
func (g *Guardian) tickSafe(ctx context.Context) {
	if err := g.Tick(ctx); err != nil {
		g.consecutiveFailures++
		entry := logger.WithError(err).WithField("consecutive_failures", g.consecutiveFailures)
		if g.consecutiveFailures >= failureAlarmThreshold {
			entry.Error("Guardian cannot reach the exchange, position protection may be offline")
		} else {
			entry.Warn("Guardian tick failed, will retry next interval")
		}
		return
	}
	g.consecutiveFailures = 0
}

// Tick evaluates every open position once.
func (g *Guardian) Tick(ctx context.Context) error {
	positions, err := g.ledger.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(positions))
	for _, position := range positions {
		symbols = append(symbols, position.Symbol)
	}

	tickers, err := g.gateway.Tickers(ctx, symbols)
	if err != nil {
		return fmt.Errorf("batch ticker fetch: %w", err)
	}

	for i := range positions {
		position := positions[i]

		ticker, ok := tickers[position.Symbol]
		if !ok || ticker.Last <= 0 {
			logger.WithField("symbol", position.Symbol).Warn("No price for open position this tick")
			continue
		}
		g.evaluate(ctx, &position, ticker.Last)
	}
	return nil
}

// evaluate applies the protection state machine to one position at the
// given price.
func (g *Guardian) evaluate(ctx context.Context, position *model.Position, price float64) {
	// Trailing stop: ratchet the high-water-mark first so the effective
	// stop level reflects this tick's price.
	if position.TrailingPct != nil && price > position.HighWaterMark {
		updated, err := g.ledger.UpdateLevels(ctx, position.ID, ledger.Levels{HighWaterMark: &price})
		if err != nil {
			logger.WithField("symbol", position.Symbol).WithError(err).Warn("Failed to raise high-water-mark")
		} else {
			position = updated
		}
	}

	if reason := exitReason(position, price); reason != "" {
		g.protectiveExit(ctx, position, price, reason)
	}
}

// exitReason returns the protective-exit trigger for the position at
// the given price, or empty when the position should stay open. The
// stop-loss check wins over take-profit.
func exitReason(position *model.Position, price float64) string {
	stopLoss, hasStop := position.EffectiveStopLoss()
	if hasStop && price <= stopLoss {
		return model.TradeSourceStopLoss
	}
	if position.TakeProfit != nil && price >= *position.TakeProfit {
		return model.TradeSourceTakeProfit
	}
	return ""
}

// protectiveExit sells the full position at market. An order failure is
// logged and notified but not retried within the tick; the next tick
// re-evaluates from current state.
func (g *Guardian) protectiveExit(ctx context.Context, position *model.Position, price float64, reason string) {
	log := logger.WithFields(map[string]interface{}{
		"symbol": position.Symbol,
		"reason": reason,
		"price":  price,
	})
	log.Warn("Protective exit triggered")

	order, err := g.gateway.MarketSell(ctx, position.Symbol, position.Amount)
	if err != nil {
		log.WithError(err).Error("Protective exit order failed")
		g.notifier.Notify(ctx, fmt.Sprintf("⚠️ Protective exit FAILED for %s (%s): %v", position.Symbol, reason, err))
		return
	}

	if order.Dead() {
		log.WithField("status", order.Status).Error("Protective exit order canceled or rejected, position remains open, operator attention required")
		g.notifier.Notify(ctx, fmt.Sprintf("🚨 Protective exit order for %s came back %s; position is still open and unprotected this tick", position.Symbol, order.Status))
		return
	}

	fillPrice := order.AvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	filledAmount := order.FilledAmount
	if filledAmount <= 0 {
		filledAmount = position.Amount
	}

	partial := order.Status == gateway.OrderStatusPartiallyFilled && filledAmount < position.Amount
	if partial {
		// Deliberate: the remainder is deferred to the next tick rather
		// than chased with a follow-up order now.
		log.WithFields(map[string]interface{}{
			"filled":    filledAmount,
			"requested": position.Amount,
		}).Warn("Protective exit partially filled, remainder deferred to next tick")
	}

	trade := &model.Trade{
		Symbol:          position.Symbol,
		Side:            model.TradeSideSell,
		OrderType:       "market",
		Amount:          filledAmount,
		Price:           fillPrice,
		Cost:            fillPrice * filledAmount,
		ExchangeOrderID: order.ExchangeOrderID,
		Source:          reason,
		Reasoning:       fmt.Sprintf("protective exit: %s at %.2f", reason, price),
		PositionID:      &position.ID,
		Sandbox:         g.gateway.Sandbox(),
	}
	if err := g.ledger.LogTrade(ctx, trade); err != nil {
		log.WithError(err).Error("Failed to log protective exit trade")
	}

	if partial {
		if _, err := g.ledger.ReduceAmount(ctx, position.ID, filledAmount); err != nil {
			log.WithError(err).Error("Failed to reduce position after partial fill")
		}
		g.notifier.Notify(ctx, fmt.Sprintf("⚠️ Protective exit for %s partially filled (%.8f of %.8f); remainder retries next tick", position.Symbol, filledAmount, position.Amount))
		return
	}

	status := model.PositionStatusStoppedOut
	if reason == model.TradeSourceTakeProfit {
		status = model.PositionStatusTookProfit
	}

	closed, err := g.ledger.ClosePosition(ctx, position.ID, fillPrice, status, &trade.ID)
	if err != nil {
		log.WithError(err).Error("Failed to close position after protective exit")
		return
	}

	pnl := 0.0
	if closed.RealizedPnl != nil {
		pnl = *closed.RealizedPnl
	}

	if _, err := g.risk.Apply(ctx, func(state *model.DailyState) {
		state.TradesToday++
		state.PnlToday = state.PnlToday.Add(decimal.NewFromFloat(pnl))
	}); err != nil {
		log.WithError(err).Error("Failed to update daily risk state after protective exit")
	}

	g.notifier.Notify(ctx, fmt.Sprintf("🛡 %s exit on %s at %.2f, realized P&L %.2f USD", reason, position.Symbol, fillPrice, pnl))
}
