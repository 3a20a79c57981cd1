package model

import "time"

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

const (
	PositionStatusOpen       = "open"
	PositionStatusClosed     = "closed"
	PositionStatusStoppedOut = "stopped_out"
	PositionStatusTookProfit = "took_profit"
)

// Position represents a directional exposure on a single symbol.
// The engine allows at most one open position per symbol; averaging into
// an existing position is not supported.
type Position struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Symbol     string  `gorm:"size:40;index" json:"symbol"`
	Side       string  `gorm:"size:10;not null;default:long" json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Amount     float64 `json:"amount"`
	CostBasis  float64 `json:"cost_basis"`

	StopLoss      *float64 `json:"stop_loss,omitempty"`
	TakeProfit    *float64 `json:"take_profit,omitempty"`
	TrailingPct   *float64 `json:"trailing_pct,omitempty"`
	HighWaterMark float64  `json:"high_water_mark"`

	Status string `gorm:"size:20;not null;default:open" json:"status"`

	EntryTradeID *uint `gorm:"index" json:"entry_trade_id,omitempty"`
	ExitTradeID  *uint `gorm:"index" json:"exit_trade_id,omitempty"`

	// RealizedPnl and ClosedAt are set exactly once, when the position
	// reaches a terminal status.
	RealizedPnl *float64   `json:"realized_pnl,omitempty"`
	ExitPrice   *float64   `json:"exit_price,omitempty"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// IsOpen reports whether the position is still live.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// EffectiveStopLoss returns the stop level the guardian should enforce:
// the higher of the configured stop-loss and the trailing level derived
// from the high-water-mark.
func (p *Position) EffectiveStopLoss() (float64, bool) {
	var level float64
	var ok bool

	if p.StopLoss != nil {
		level = *p.StopLoss
		ok = true
	}
	if p.TrailingPct != nil && p.HighWaterMark > 0 {
		trail := p.HighWaterMark * (1 - *p.TrailingPct/100)
		if trail > level {
			level = trail
		}
		ok = true
	}
	return level, ok
}
