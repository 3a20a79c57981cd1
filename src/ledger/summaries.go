package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"tradesentinel/src/gateway"
	"tradesentinel/src/model"
	"tradesentinel/src/utils"
)

// PositionSummary joins an open position with its live ticker price.
type PositionSummary struct {
	Position model.Position `json:"position"`

	CurrentPrice     float64 `json:"current_price"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	UnrealizedPnlPct float64 `json:"unrealized_pnl_pct"`

	// Distance to the protective levels as a percentage of the current
	// price; zero when the level is unset.
	PctToStopLoss   float64 `json:"pct_to_stop_loss"`
	PctToTakeProfit float64 `json:"pct_to_take_profit"`

	PriceKnown bool `json:"price_known"`
}

// OpenPositionSummaries joins open positions with the supplied live
// tickers. Symbols whose ticker is missing come back with PriceKnown
// false instead of being dropped.
func (s *Service) OpenPositionSummaries(ctx context.Context, tickers map[string]*gateway.Ticker) ([]PositionSummary, error) {
	positions, err := s.positions.FindOpen(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]PositionSummary, 0, len(positions))
	for _, position := range positions {
		summary := PositionSummary{Position: position}

		if ticker, ok := tickers[position.Symbol]; ok && ticker.Last > 0 {
			price := ticker.Last
			summary.PriceKnown = true
			summary.CurrentPrice = price
			summary.UnrealizedPnl = (price - position.EntryPrice) * position.Amount
			if position.Side == model.PositionSideShort {
				summary.UnrealizedPnl = -summary.UnrealizedPnl
			}
			if position.CostBasis != 0 {
				summary.UnrealizedPnlPct = summary.UnrealizedPnl / position.CostBasis * 100
			}
			if position.StopLoss != nil {
				summary.PctToStopLoss = (price - *position.StopLoss) / price * 100
			}
			if position.TakeProfit != nil {
				summary.PctToTakeProfit = (*position.TakeProfit - price) / price * 100
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DailyStats aggregates today's executed trades and closed positions.
type DailyStats struct {
	TradeCount  int             `json:"trade_count"`
	VolumeUSD   decimal.Decimal `json:"volume_usd"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
}

// DailyTradeStats computes today's ledger aggregates: trade count and
// volume from the trade log, realized P&L and win/loss counts from
// positions closed today.
func (s *Service) DailyTradeStats(ctx context.Context) (*DailyStats, error) {
	midnight := utils.StartOfDay(s.now())

	trades, err := s.trades.FindExecutedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	stats := &DailyStats{
		VolumeUSD:   decimal.Zero,
		RealizedPnl: decimal.Zero,
	}
	stats.TradeCount = len(trades)
	for _, trade := range trades {
		stats.VolumeUSD = stats.VolumeUSD.Add(decimal.NewFromFloat(trade.Cost))
	}

	closed, err := s.positions.FindClosedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	for _, position := range closed {
		if position.RealizedPnl == nil {
			continue
		}
		pnl := decimal.NewFromFloat(*position.RealizedPnl)
		stats.RealizedPnl = stats.RealizedPnl.Add(pnl)
		if pnl.IsPositive() {
			stats.Wins++
		} else if pnl.IsNegative() {
			stats.Losses++
		}
	}

	return stats, nil
}
