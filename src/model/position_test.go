package model

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestEffectiveStopLoss(t *testing.T) {
	tests := []struct {
		name     string
		position Position
		want     float64
		wantOK   bool
	}{
		{
			name:     "no levels set",
			position: Position{EntryPrice: 100},
			wantOK:   false,
		},
		{
			name:     "fixed stop only",
			position: Position{StopLoss: floatPtr(95)},
			want:     95,
			wantOK:   true,
		},
		{
			name: "trailing stop below fixed keeps fixed",
			position: Position{
				StopLoss:      floatPtr(95),
				TrailingPct:   floatPtr(10),
				HighWaterMark: 100,
			},
			want:   95,
			wantOK: true,
		},
		{
			name: "trailing stop ratchets above fixed after a rally",
			position: Position{
				StopLoss:      floatPtr(95),
				TrailingPct:   floatPtr(5),
				HighWaterMark: 120,
			},
			want:   114,
			wantOK: true,
		},
		{
			name: "trailing only",
			position: Position{
				TrailingPct:   floatPtr(2),
				HighWaterMark: 50000,
			},
			want:   49000,
			wantOK: true,
		},
		{
			name: "trailing with zero high-water-mark is ignored",
			position: Position{
				TrailingPct: floatPtr(2),
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.position.EffectiveStopLoss()
			if ok != tt.wantOK {
				t.Fatalf("ok = %t, want %t", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("effective stop = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestIsOpen(t *testing.T) {
	for status, want := range map[string]bool{
		PositionStatusOpen:       true,
		PositionStatusClosed:     false,
		PositionStatusStoppedOut: false,
		PositionStatusTookProfit: false,
	} {
		p := Position{Status: status}
		if p.IsOpen() != want {
			t.Fatalf("IsOpen with status %s = %t, want %t", status, p.IsOpen(), want)
		}
	}
}
