package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradesentinel/src/model"
	"tradesentinel/src/repository"
	"tradesentinel/src/settings"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func newTestService(db *gorm.DB) *Service {
	return NewService(
		repository.NewPositionRepository().WithDB(db),
		repository.NewTradeRepository().WithDB(db),
	).WithClock(func() time.Time {
		return time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	})
}

func positionColumns() []string {
	return []string{
		"id", "symbol", "side", "entry_price", "amount", "cost_basis",
		"stop_loss", "take_profit", "trailing_pct", "high_water_mark",
		"status", "entry_trade_id", "exit_trade_id",
		"realized_pnl", "exit_price", "opened_at", "closed_at",
		"created_at", "updated_at",
	}
}

func openPositionRow(id uint, symbol string, entry, amount float64) *sqlmock.Rows {
	opened := time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(positionColumns()).
		AddRow(id, symbol, model.PositionSideLong, entry, amount, entry*amount,
			nil, nil, nil, entry,
			model.PositionStatusOpen, nil, nil,
			nil, nil, opened, nil,
			opened, opened)
}

func closedPositionRow(id uint, symbol string, entry, amount, exit, pnl float64) *sqlmock.Rows {
	opened := time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC)
	closed := opened.Add(2 * time.Hour)
	return sqlmock.NewRows(positionColumns()).
		AddRow(id, symbol, model.PositionSideLong, entry, amount, entry*amount,
			nil, nil, nil, entry,
			model.PositionStatusStoppedOut, nil, nil,
			pnl, exit, opened, closed,
			opened, closed)
}

// Closing a position that took a 1550 USD loss books exactly that loss,
// once.
func TestClosePositionRealizesLoss(t *testing.T) {
	db, mock := newMockDB(t)
	service := newTestService(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE "positions"."id" = \$1`).
		WithArgs(uint(7), 1).
		WillReturnRows(openPositionRow(7, "BTC/USDT", 50000, 0.1))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	position, err := service.ClosePosition(context.Background(), 7, 34500, model.PositionStatusStoppedOut, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if position.Status != model.PositionStatusStoppedOut {
		t.Fatalf("status = %s, want %s", position.Status, model.PositionStatusStoppedOut)
	}
	if position.RealizedPnl == nil {
		t.Fatalf("realized P&L not set")
	}
	if math.Abs(*position.RealizedPnl-(-1550)) > 1e-9 {
		t.Fatalf("realized P&L = %f, want -1550", *position.RealizedPnl)
	}
	if position.ClosedAt == nil {
		t.Fatalf("closed_at not set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

// Closing an already-closed position is a no-op: no update is issued and
// the stored record comes back unchanged.
func TestClosePositionIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	service := newTestService(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE "positions"."id" = \$1`).
		WithArgs(uint(7), 1).
		WillReturnRows(closedPositionRow(7, "BTC/USDT", 50000, 0.1, 34500, -1550))

	position, err := service.ClosePosition(context.Background(), 7, 99999, model.PositionStatusClosed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if position.Status != model.PositionStatusStoppedOut {
		t.Fatalf("status changed on second close: %s", position.Status)
	}
	if position.ExitPrice == nil || *position.ExitPrice != 34500 {
		t.Fatalf("exit price changed on second close: %+v", position.ExitPrice)
	}
	if position.RealizedPnl == nil || *position.RealizedPnl != -1550 {
		t.Fatalf("realized P&L changed on second close: %+v", position.RealizedPnl)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestClosePositionUnknownID(t *testing.T) {
	db, mock := newMockDB(t)
	service := newTestService(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE "positions"."id" = \$1`).
		WithArgs(uint(99), 1).
		WillReturnRows(sqlmock.NewRows(positionColumns()))

	_, err := service.ClosePosition(context.Background(), 99, 100, model.PositionStatusClosed, nil)
	if !errors.Is(err, ErrUnknownPosition) {
		t.Fatalf("expected ErrUnknownPosition, got %v", err)
	}
}

// A second open position on the same symbol is rejected; the engine
// never averages into existing exposure.
func TestOpenPositionRejectsDuplicateSymbol(t *testing.T) {
	db, mock := newMockDB(t)
	service := newTestService(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE symbol = \$1 AND status = \$2`).
		WithArgs("BTC/USDT", model.PositionStatusOpen, 1).
		WillReturnRows(openPositionRow(3, "BTC/USDT", 48000, 0.05))

	_, err := service.OpenPosition(context.Background(), OpenParams{
		Symbol:     "BTC/USDT",
		EntryPrice: 50000,
		Amount:     0.1,
	}, nil)
	if !errors.Is(err, ErrPositionExists) {
		t.Fatalf("expected ErrPositionExists, got %v", err)
	}
}

// With no explicit levels the configured default percentages apply and
// the high-water-mark starts at the entry price.
func TestOpenPositionAppliesDefaultLevels(t *testing.T) {
	db, mock := newMockDB(t)
	service := newTestService(db)

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE symbol = \$1 AND status = \$2`).
		WithArgs("ETH/USDT", model.PositionStatusOpen, 1).
		WillReturnRows(sqlmock.NewRows(positionColumns()))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	cfg := &settings.Trading{
		DefaultStopLossPct:   5,
		DefaultTakeProfitPct: 10,
		TrailingStopPct:      2,
	}

	position, err := service.OpenPosition(context.Background(), OpenParams{
		Symbol:     "ETH/USDT",
		EntryPrice: 2000,
		Amount:     0.5,
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if position.StopLoss == nil || *position.StopLoss != 1900 {
		t.Fatalf("stop loss = %+v, want 1900", position.StopLoss)
	}
	if position.TakeProfit == nil || *position.TakeProfit != 2200 {
		t.Fatalf("take profit = %+v, want 2200", position.TakeProfit)
	}
	if position.TrailingPct == nil || *position.TrailingPct != 2 {
		t.Fatalf("trailing pct = %+v, want 2", position.TrailingPct)
	}
	if position.HighWaterMark != 2000 {
		t.Fatalf("high-water-mark = %f, want entry price 2000", position.HighWaterMark)
	}
	if position.Side != model.PositionSideLong {
		t.Fatalf("side = %s, want long", position.Side)
	}
}
