package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesentinel/src/model"
	"tradesentinel/src/settings"
)

// Gate outcomes, in the order they short-circuit. Limit hits are
// expected outcomes, not errors: they silently prevent the action and
// surface in the next prompt's trading-rules section.
const (
	GateTradingDisabled = "trading_disabled"
	GatePreviewOnly     = "preview_only"
	GateTradeLimit      = "trade_limit_reached"
	GateLossLimit       = "loss_limit_reached"
	GatePermitted       = "permitted"
)

// GateDecision is the result of evaluating the trading-safety gate.
type GateDecision struct {
	Allowed bool
	Stage   string
	Reason  string
}

// EvaluateGate applies the safety-gate priority order: trading disabled,
// auto-confirm disabled (preview-only), daily trade-count limit, daily
// loss limit, else permitted.
func EvaluateGate(state *model.DailyState, cfg *settings.Trading) GateDecision {
	if !cfg.Enabled {
		return GateDecision{Stage: GateTradingDisabled, Reason: "trading is disabled"}
	}
	if !cfg.AutoConfirm {
		return GateDecision{Stage: GatePreviewOnly, Reason: "auto-confirm is off, recommendations are preview-only"}
	}
	if state.TradesToday >= cfg.MaxTradesPerDay {
		return GateDecision{
			Stage:  GateTradeLimit,
			Reason: fmt.Sprintf("daily trade limit reached (%d/%d)", state.TradesToday, cfg.MaxTradesPerDay),
		}
	}

	lossLimit := decimal.NewFromFloat(cfg.DailyLossLimitUSD)
	if lossLimit.IsPositive() && state.PnlToday.LessThanOrEqual(lossLimit.Neg()) {
		return GateDecision{
			Stage:  GateLossLimit,
			Reason: fmt.Sprintf("daily loss limit reached (%s USD)", state.PnlToday.StringFixed(2)),
		}
	}

	return GateDecision{Allowed: true, Stage: GatePermitted, Reason: "trading permitted"}
}
