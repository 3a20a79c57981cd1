package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradesentinel/src/model"
	"tradesentinel/src/settings"
)

func gateConfig() *settings.Trading {
	return &settings.Trading{
		Enabled:           true,
		AutoConfirm:       true,
		MaxTradesPerDay:   5,
		DailyLossLimitUSD: 1500,
	}
}

func TestEvaluateGatePriorityOrder(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *settings.Trading, state *model.DailyState)
		wantStage string
		wantAllow bool
	}{
		{
			name:      "trading disabled wins over everything",
			mutate:    func(cfg *settings.Trading, state *model.DailyState) { cfg.Enabled = false; state.TradesToday = 99 },
			wantStage: GateTradingDisabled,
		},
		{
			name:      "preview only when auto-confirm is off",
			mutate:    func(cfg *settings.Trading, state *model.DailyState) { cfg.AutoConfirm = false },
			wantStage: GatePreviewOnly,
		},
		{
			name:      "trade limit",
			mutate:    func(cfg *settings.Trading, state *model.DailyState) { state.TradesToday = 5 },
			wantStage: GateTradeLimit,
		},
		{
			name: "loss limit",
			mutate: func(cfg *settings.Trading, state *model.DailyState) {
				state.PnlToday = decimal.NewFromFloat(-1550)
			},
			wantStage: GateLossLimit,
		},
		{
			name: "loss exactly at the limit blocks",
			mutate: func(cfg *settings.Trading, state *model.DailyState) {
				state.PnlToday = decimal.NewFromFloat(-1500)
			},
			wantStage: GateLossLimit,
		},
		{
			name: "loss under the limit passes",
			mutate: func(cfg *settings.Trading, state *model.DailyState) {
				state.PnlToday = decimal.NewFromFloat(-1499.99)
			},
			wantStage: GatePermitted,
			wantAllow: true,
		},
		{
			name: "trade limit is checked before loss limit",
			mutate: func(cfg *settings.Trading, state *model.DailyState) {
				state.TradesToday = 5
				state.PnlToday = decimal.NewFromFloat(-9999)
			},
			wantStage: GateTradeLimit,
		},
		{
			name:      "clean state is permitted",
			mutate:    func(cfg *settings.Trading, state *model.DailyState) {},
			wantStage: GatePermitted,
			wantAllow: true,
		},
		{
			name: "zero loss limit disables the loss check",
			mutate: func(cfg *settings.Trading, state *model.DailyState) {
				cfg.DailyLossLimitUSD = 0
				state.PnlToday = decimal.NewFromFloat(-99999)
			},
			wantStage: GatePermitted,
			wantAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := gateConfig()
			state := &model.DailyState{PnlToday: decimal.Zero}
			tt.mutate(cfg, state)

			decision := EvaluateGate(state, cfg)
			if decision.Stage != tt.wantStage {
				t.Fatalf("stage = %s, want %s (reason: %s)", decision.Stage, tt.wantStage, decision.Reason)
			}
			if decision.Allowed != tt.wantAllow {
				t.Fatalf("allowed = %t, want %t", decision.Allowed, tt.wantAllow)
			}
		})
	}
}
