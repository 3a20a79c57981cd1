package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// TradeRepository handles the append-only trade log. Trades are inserted
// once and never updated.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main
// read/write database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create appends a trade to the log.
func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {
	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "Create",
			"symbol": trade.Symbol,
			"side":   trade.Side,
			"source": trade.Source,
		}).WithError(err).Error("Failed to log trade")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"side":     trade.Side,
		"source":   trade.Source,
	}).Info("Trade logged")

	return nil
}

// FindLatest returns the latest trades ordered from newest to oldest.
func (r *TradeRepository) FindLatest(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 20
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindLatest",
		}).WithError(err).Error("Failed to fetch latest trades")
		return nil, err
	}
	return trades, nil
}

// FindExecutedSince returns trades executed at or after the given time,
// oldest first.
func (r *TradeRepository) FindExecutedSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("executed_at >= ?", since).
		Order("executed_at ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}
