package model

import (
	"encoding/json"
	"time"
)

const (
	BiasBullish = "bullish"
	BiasBearish = "bearish"
	BiasNeutral = "neutral"
)

// CoinGuidance is the per-coin slice of a CEO directive.
type CoinGuidance struct {
	Symbol         string  `json:"symbol"`
	Bias           string  `json:"bias"`
	Action         string  `json:"action"`
	MaxPositionPct float64 `json:"maxPositionPct"`
}

// PriceZone is the directive-assigned buy/sell band for one symbol.
type PriceZone struct {
	BuyMin  float64 `json:"buyMin"`
	BuyMax  float64 `json:"buyMax"`
	SellMin float64 `json:"sellMin"`
	SellMax float64 `json:"sellMax"`
}

// CEODirective is the current strategic directive. Exactly one row is
// current at a time; generating a new directive fully replaces the old
// one (last writer wins, no merge).
type CEODirective struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Regime    string `gorm:"size:40" json:"regime"`
	Bias      string `gorm:"size:20" json:"bias"`
	RiskLevel int    `json:"risk_level"`

	// CoinsJSON and ZonesJSON hold the marshalled CoinGuidance list and
	// symbol->PriceZone map.
	CoinsJSON string `gorm:"type:text" json:"coins_json,omitempty"`
	ZonesJSON string `gorm:"type:text" json:"zones_json,omitempty"`

	RiskGuidelines     string `gorm:"type:text" json:"risk_guidelines,omitempty"`
	AvoidList          string `gorm:"type:text" json:"avoid_list,omitempty"`
	EscalationTriggers string `gorm:"type:text" json:"escalation_triggers,omitempty"`
	Summary            string `gorm:"type:text" json:"summary,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CEODirective) TableName() string {
	return "ceo_directives"
}

// IsExpired reports whether the directive's validity window has lapsed.
func (d *CEODirective) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Coins unmarshals the per-coin guidance list. A malformed or empty
// column yields nil.
func (d *CEODirective) Coins() []CoinGuidance {
	if d.CoinsJSON == "" {
		return nil
	}
	var coins []CoinGuidance
	if err := json.Unmarshal([]byte(d.CoinsJSON), &coins); err != nil {
		return nil
	}
	return coins
}

// Zones unmarshals the symbol->zone map. A malformed or empty column
// yields nil.
func (d *CEODirective) Zones() map[string]PriceZone {
	if d.ZonesJSON == "" {
		return nil
	}
	var zones map[string]PriceZone
	if err := json.Unmarshal([]byte(d.ZonesJSON), &zones); err != nil {
		return nil
	}
	return zones
}
