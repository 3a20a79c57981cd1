package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// EngineStateRepository persists cross-loop bookkeeping (CEO run guard,
// escalation debounce) as a singleton row.
type EngineStateRepository struct {
	db *gorm.DB
}

// NewEngineStateRepository creates a new repository instance using the
// main read/write database.
func NewEngineStateRepository() *EngineStateRepository {
	return &EngineStateRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *EngineStateRepository) WithDB(db *gorm.DB) *EngineStateRepository {
	return &EngineStateRepository{db: db}
}

// Get loads the state row. Returns a zero-value state when none exists.
func (r *EngineStateRepository) Get(ctx context.Context) (*model.EngineState, error) {
	var state model.EngineState
	err := r.db.WithContext(ctx).First(&state, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.EngineState{ID: 1}, nil
		}
		return nil, err
	}
	return &state, nil
}

// Save upserts the singleton row.
func (r *EngineStateRepository) Save(ctx context.Context, state *model.EngineState) error {
	state.ID = 1
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_ceo_run_date", "last_escalation_at", "updated_at"}),
	}).Create(state).Error
}
