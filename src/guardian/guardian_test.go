package guardian

import (
	"testing"

	"tradesentinel/src/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestExitReason(t *testing.T) {
	tests := []struct {
		name     string
		position model.Position
		price    float64
		want     string
	}{
		{
			name:     "no protective levels",
			position: model.Position{EntryPrice: 50000, Amount: 0.1},
			price:    30000,
			want:     "",
		},
		{
			name:     "price above stop stays open",
			position: model.Position{EntryPrice: 50000, StopLoss: floatPtr(47500)},
			price:    48000,
			want:     "",
		},
		{
			name:     "stop-loss breach",
			position: model.Position{EntryPrice: 50000, StopLoss: floatPtr(47500)},
			price:    47500,
			want:     model.TradeSourceStopLoss,
		},
		{
			name:     "take-profit hit",
			position: model.Position{EntryPrice: 50000, TakeProfit: floatPtr(55000)},
			price:    55200,
			want:     model.TradeSourceTakeProfit,
		},
		{
			name: "trailing stop fires after the rally gave back 5 percent",
			position: model.Position{
				EntryPrice:    50000,
				TrailingPct:   floatPtr(5),
				HighWaterMark: 60000,
			},
			price: 56900,
			want:  model.TradeSourceStopLoss,
		},
		{
			name: "trailing stop holds while above the ratcheted level",
			position: model.Position{
				EntryPrice:    50000,
				TrailingPct:   floatPtr(5),
				HighWaterMark: 60000,
			},
			price: 57100,
			want:  "",
		},
		{
			name: "stop-loss wins when both levels are breached",
			position: model.Position{
				EntryPrice: 50000,
				StopLoss:   floatPtr(60000),
				TakeProfit: floatPtr(55000),
			},
			price: 56000,
			want:  model.TradeSourceStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exitReason(&tt.position, tt.price)
			if got != tt.want {
				t.Fatalf("exitReason = %q, want %q", got, tt.want)
			}
		})
	}
}
