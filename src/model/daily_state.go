package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// DailyState is the per-day risk counter shared by every trade-executing
// code path. It is stored as a singleton row; readers that find a stale
// LastResetDate must treat the state as zeroed for today without writing
// anything back (read-time reset).
type DailyState struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TradesToday   int             `json:"trades_today"`
	PnlToday      decimal.Decimal `gorm:"type:numeric" json:"pnl_today"`
	LastResetDate string          `gorm:"size:10" json:"last_reset_date"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (DailyState) TableName() string {
	return "daily_states"
}

// FreshDailyState returns a zeroed state dated with the local calendar day
// of now.
func FreshDailyState(now time.Time) DailyState {
	return DailyState{
		ID:            1,
		TradesToday:   0,
		PnlToday:      decimal.Zero,
		LastResetDate: now.Format(DateLayout),
	}
}

// IsStale reports whether the state belongs to an earlier calendar day.
func (s *DailyState) IsStale(now time.Time) bool {
	return s.LastResetDate != now.Format(DateLayout)
}
