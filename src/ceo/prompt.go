package ceo

import (
	"context"
	"fmt"
	"strings"

	"github.com/nntaoli-project/goex"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/settings"
	"tradesentinel/src/ta"
)

const ceoSystemPrompt = `You are the chief strategist of an automated crypto trading operation.
Once per day (or when escalated) you set the standing directive the tactical layer trades under.
Think in regimes and risk budgets, not individual trades.

Respond with a short market assessment followed by EXACTLY ONE fenced directive block:

` + "```directive" + `
{"regime": "trending_up|trending_down|ranging|volatile|uncertain", "bias": "bullish|bearish|neutral", "risk_level": 1, "coins": [{"symbol": "BTC/USDT", "bias": "neutral", "action": "hold", "maxPositionPct": 25}], "zones": {"BTC/USDT": {"buyMin": 0, "buyMax": 0, "sellMin": 0, "sellMax": 0}}, "risk_guidelines": "one or two sentences", "avoid": [], "escalation_triggers": [], "summary": "one or two sentences"}
` + "```" + `

risk_level runs 1 (defensive) to 10 (aggressive). Zones use absolute prices in USDT.`

const ceoKlineLookback = 200

// buildPrompt assembles the strategic-review context: daily performance,
// open positions and a long-horizon indicator table per tracked coin.
func (o *Overlay) buildPrompt(ctx context.Context, cfg *settings.Trading, reason string) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Review trigger: %s\n\n", reason)

	b.WriteString("# PERFORMANCE TODAY\n")
	b.WriteString("| metric | value |\n|---|---|\n")
	if stats, err := o.ledger.DailyTradeStats(ctx); err == nil {
		fmt.Fprintf(&b, "| trades | %d |\n", stats.TradeCount)
		fmt.Fprintf(&b, "| volume | %s USD |\n", stats.VolumeUSD.StringFixed(2))
		fmt.Fprintf(&b, "| realized P&L | %s USD |\n", stats.RealizedPnl.StringFixed(2))
		fmt.Fprintf(&b, "| wins/losses | %d/%d |\n", stats.Wins, stats.Losses)
	}
	if state, err := o.risk.Read(ctx); err == nil {
		fmt.Fprintf(&b, "| P&L vs daily loss limit | %s of -%.2f USD |\n", state.PnlToday.StringFixed(2), cfg.DailyLossLimitUSD)
	}

	b.WriteString("\n# OPEN POSITIONS\n")
	positions, err := o.ledger.OpenPositions(ctx)
	if err != nil {
		return "", fmt.Errorf("load open positions: %w", err)
	}
	if len(positions) == 0 {
		b.WriteString("None.\n")
	} else {
		b.WriteString("| symbol | side | amount | entry | stop | target |\n|---|---|---|---|---|---|\n")
		for _, p := range positions {
			fmt.Fprintf(&b, "| %s | %s | %.8f | %.2f | %s | %s |\n",
				p.Symbol, p.Side, p.Amount, p.EntryPrice,
				formatLevel(p.StopLoss), formatLevel(p.TakeProfit))
		}
	}

	b.WriteString("\n# MARKET (daily candles)\n")
	b.WriteString("| symbol | price | trend | rsi14 | sma20 | sma50 | support | resistance |\n|---|---|---|---|---|---|---|---|\n")
	got := 0
	for _, symbol := range cfg.TrackedCoins {
		candles, err := o.gateway.Klines(ctx, symbol, goex.KLINE_PERIOD_1DAY, ceoKlineLookback)
		if err != nil {
			logger.WithField("symbol", symbol).WithError(err).Warn("Daily kline fetch failed for strategic review")
			continue
		}
		snapshot, err := ta.ComputeSnapshot(symbol, candles)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "| %s | %.2f | %s | %.1f | %.2f | %.2f | %.2f | %.2f |\n",
			snapshot.Symbol, snapshot.Price, snapshot.Trend, snapshot.RSI14,
			snapshot.SMA20, snapshot.SMA50, snapshot.Support, snapshot.Resistance)
		got++
	}
	if got == 0 {
		return "", fmt.Errorf("no market data for any of %d tracked coins", len(cfg.TrackedCoins))
	}

	if runs, err := o.runs.FindSince(ctx, o.now().Add(-directiveValidity)); err == nil && len(runs) > 0 {
		b.WriteString("\n# LAST 24H ANALYSES\n")
		b.WriteString("| time | sentiment | summary |\n|---|---|---|\n")
		for _, r := range runs {
			summary := r.Summary
			if r.Error != "" {
				summary = "error: " + r.Error
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				r.CreatedAt.Format("15:04"), r.Sentiment, strings.ReplaceAll(summary, "\n", " "))
		}
	}

	if directive, err := o.directives.GetCurrent(ctx); err == nil && directive != nil {
		b.WriteString("\n# OUTGOING DIRECTIVE\n")
		fmt.Fprintf(&b, "regime=%s bias=%s risk_level=%d (expires %s)\n",
			directive.Regime, directive.Bias, directive.RiskLevel,
			directive.ExpiresAt.Format("2006-01-02 15:04 MST"))
		if directive.Summary != "" {
			fmt.Fprintf(&b, "summary: %s\n", directive.Summary)
		}
	}

	b.WriteString("\nEnd your answer with the fenced directive block.\n")
	return b.String(), nil
}

func formatLevel(level *float64) string {
	if level == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *level)
}
