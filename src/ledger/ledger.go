// Package ledger keeps the durable record of positions and trades and
// the derived views (open-position summaries, daily trade stats) the
// loops and prompts consume.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/model"
	"tradesentinel/src/repository"
	"tradesentinel/src/settings"
)

// ErrPositionExists is returned when a symbol already carries an open
// position; the engine does not average into existing exposure.
var ErrPositionExists = errors.New("an open position already exists for this symbol")

// ErrUnknownPosition is returned when a position id does not resolve.
var ErrUnknownPosition = errors.New("position not found")

// Service owns position lifecycle and the append-only trade log.
type Service struct {
	positions *repository.PositionRepository
	trades    *repository.TradeRepository
	now       func() time.Time
}

// NewService creates a ledger service.
func NewService(positions *repository.PositionRepository, trades *repository.TradeRepository) *Service {
	return &Service{
		positions: positions,
		trades:    trades,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Useful for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OpenParams describes a position to open. Stop-loss, take-profit and
// trailing percentage fall back to the global settings when absent.
type OpenParams struct {
	Symbol       string
	Side         string
	EntryPrice   float64
	Amount       float64
	StopLoss     *float64
	TakeProfit   *float64
	TrailingPct  *float64
	EntryTradeID *uint
}

// OpenPosition creates the open position for a filled buy. At most one
// open position may exist per symbol.
func (s *Service) OpenPosition(ctx context.Context, params OpenParams, cfg *settings.Trading) (*model.Position, error) {
	existing, err := s.positions.FindOpenBySymbol(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, params.Symbol)
	}

	stopLoss := params.StopLoss
	if stopLoss == nil && cfg != nil && cfg.DefaultStopLossPct > 0 {
		level := params.EntryPrice * (1 - cfg.DefaultStopLossPct/100)
		stopLoss = &level
	}
	takeProfit := params.TakeProfit
	if takeProfit == nil && cfg != nil && cfg.DefaultTakeProfitPct > 0 {
		level := params.EntryPrice * (1 + cfg.DefaultTakeProfitPct/100)
		takeProfit = &level
	}
	trailing := params.TrailingPct
	if trailing == nil && cfg != nil && cfg.TrailingStopPct > 0 {
		pct := cfg.TrailingStopPct
		trailing = &pct
	}

	side := params.Side
	if side == "" {
		side = model.PositionSideLong
	}

	position := &model.Position{
		Symbol:        params.Symbol,
		Side:          side,
		EntryPrice:    params.EntryPrice,
		Amount:        params.Amount,
		CostBasis:     params.EntryPrice * params.Amount,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		TrailingPct:   trailing,
		HighWaterMark: params.EntryPrice,
		Status:        model.PositionStatusOpen,
		EntryTradeID:  params.EntryTradeID,
		OpenedAt:      s.now(),
	}

	if err := s.positions.Create(ctx, position); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"symbol": position.Symbol,
		"entry":  position.EntryPrice,
		"amount": position.Amount,
	}).Info("Position opened")

	return position, nil
}

// ClosePosition transitions a position to a terminal status and sets the
// realized P&L exactly once. Closing an already-closed position is a
// no-op and returns it unchanged.
func (s *Service) ClosePosition(ctx context.Context, id uint, exitPrice float64, status string, exitTradeID *uint) (*model.Position, error) {
	position, err := s.positions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrUnknownPosition
	}
	if !position.IsOpen() {
		return position, nil
	}

	pnl := realizedPnl(position, exitPrice)
	closedAt := s.now()

	position.Status = status
	position.RealizedPnl = &pnl
	position.ExitPrice = &exitPrice
	position.ExitTradeID = exitTradeID
	position.ClosedAt = &closedAt

	if err := s.positions.Save(ctx, position); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"symbol": position.Symbol,
		"status": status,
		"pnl":    pnl,
	}).Info("Position closed")

	return position, nil
}

// realizedPnl applies the long/short sign convention. Only the long side
// is traded today; the short branch keeps the schema honest.
func realizedPnl(position *model.Position, exitPrice float64) float64 {
	if position.Side == model.PositionSideShort {
		return (position.EntryPrice - exitPrice) * position.Amount
	}
	return (exitPrice - position.EntryPrice) * position.Amount
}

// Levels is the mutable protective-level set of an open position.
type Levels struct {
	StopLoss      *float64
	TakeProfit    *float64
	TrailingPct   *float64
	HighWaterMark *float64
}

// UpdateLevels mutates the protective levels of an open position.
func (s *Service) UpdateLevels(ctx context.Context, id uint, levels Levels) (*model.Position, error) {
	position, err := s.positions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrUnknownPosition
	}
	if !position.IsOpen() {
		return nil, fmt.Errorf("position %d is not open", id)
	}

	if levels.StopLoss != nil {
		position.StopLoss = levels.StopLoss
	}
	if levels.TakeProfit != nil {
		position.TakeProfit = levels.TakeProfit
	}
	if levels.TrailingPct != nil {
		position.TrailingPct = levels.TrailingPct
	}
	if levels.HighWaterMark != nil {
		position.HighWaterMark = *levels.HighWaterMark
	}

	if err := s.positions.Save(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// ReduceAmount shrinks an open position after a partial exit fill. The
// unfilled remainder stays open so the next protection tick can retry.
func (s *Service) ReduceAmount(ctx context.Context, id uint, soldAmount float64) (*model.Position, error) {
	position, err := s.positions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrUnknownPosition
	}
	if !position.IsOpen() {
		return nil, fmt.Errorf("position %d is not open", id)
	}
	if soldAmount <= 0 || soldAmount >= position.Amount {
		return nil, fmt.Errorf("sold amount %f must be positive and below position size %f", soldAmount, position.Amount)
	}

	position.Amount -= soldAmount
	position.CostBasis = position.EntryPrice * position.Amount

	if err := s.positions.Save(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// LogTrade appends one executed order to the immutable trade log.
func (s *Service) LogTrade(ctx context.Context, trade *model.Trade) error {
	if trade.ClientOrderID == "" {
		trade.ClientOrderID = uuid.NewString()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = s.now()
	}
	return s.trades.Create(ctx, trade)
}

// OpenPositions returns all open positions.
func (s *Service) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.positions.FindOpen(ctx)
}

// RecentTrades returns the newest trades, newest first.
func (s *Service) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	return s.trades.FindLatest(ctx, limit)
}
