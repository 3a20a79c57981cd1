package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// DailyStateRepository persists the singleton daily risk counter row.
// The read-time reset semantics live in src/risk; this repository only
// moves bytes.
type DailyStateRepository struct {
	db *gorm.DB
}

// NewDailyStateRepository creates a new repository instance using the
// main read/write database.
func NewDailyStateRepository() *DailyStateRepository {
	return &DailyStateRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *DailyStateRepository) WithDB(db *gorm.DB) *DailyStateRepository {
	return &DailyStateRepository{db: db}
}

// Get loads the persisted state. Returns (nil, nil) when no row exists
// yet.
func (r *DailyStateRepository) Get(ctx context.Context) (*model.DailyState, error) {
	var state model.DailyState
	err := r.db.WithContext(ctx).First(&state, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Upsert persists the state unconditionally, replacing the singleton row.
func (r *DailyStateRepository) Upsert(ctx context.Context, state *model.DailyState) error {
	state.ID = 1
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"trades_today", "pnl_today", "last_reset_date", "updated_at"}),
	}).Create(state).Error
}
