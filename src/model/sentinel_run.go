package model

import "time"

// SentinelRun is the append-only audit record of one analysis cycle.
// Actions stays null when the reasoning output could not be parsed; the
// raw text still lands in Summary so the cycle remains auditable.
type SentinelRun struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	RunID string `gorm:"size:64;uniqueIndex" json:"run_id"`

	IndicatorSnapshot string `gorm:"type:text" json:"indicator_snapshot,omitempty"`
	PortfolioSnapshot string `gorm:"type:text" json:"portfolio_snapshot,omitempty"`

	Sentiment string  `gorm:"size:20" json:"sentiment,omitempty"`
	Signals   string  `gorm:"type:text" json:"signals,omitempty"`
	Actions   *string `gorm:"type:text" json:"actions,omitempty"`
	Summary   string  `gorm:"type:text" json:"summary,omitempty"`

	DurationMs int64  `json:"duration_ms"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SentinelRun) TableName() string {
	return "sentinel_runs"
}
