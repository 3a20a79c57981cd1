package model

import "time"

const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

const (
	TradeSourceSentinel   = "sentinel"
	TradeSourceUser       = "user"
	TradeSourceStopLoss   = "stop_loss"
	TradeSourceTakeProfit = "take_profit"
)

// Trade is an immutable append-only record of one executed order.
// Rows are inserted after the exchange confirms the fill and are never
// updated afterwards.
type Trade struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Symbol    string  `gorm:"size:40;index" json:"symbol"`
	Side      string  `gorm:"size:10;not null" json:"side"`
	OrderType string  `gorm:"size:20;not null;default:market" json:"order_type"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Cost      float64 `json:"cost"`

	ExchangeOrderID string `gorm:"size:255" json:"exchange_order_id"`
	ClientOrderID   string `gorm:"size:64" json:"client_order_id"`

	Source    string `gorm:"size:20;index;not null" json:"source"`
	Reasoning string `gorm:"type:text" json:"reasoning,omitempty"`

	SentinelRunID *uint `gorm:"index" json:"sentinel_run_id,omitempty"`
	PositionID    *uint `gorm:"index" json:"position_id,omitempty"`

	Sandbox bool `json:"sandbox"`

	ExecutedAt time.Time `gorm:"index" json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
