package model

import "time"

// EngineState is a singleton row holding cross-loop bookkeeping that has
// to survive process restarts: the CEO overlay's once-per-day guard and
// the escalation debounce timestamp.
type EngineState struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	LastCEORunDate   string     `gorm:"size:10" json:"last_ceo_run_date"`
	LastEscalationAt *time.Time `json:"last_escalation_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (EngineState) TableName() string {
	return "engine_states"
}
