package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// SentinelRunRepository handles the append-only sentinel run audit log.
type SentinelRunRepository struct {
	db *gorm.DB
}

// NewSentinelRunRepository creates a new repository instance using the
// main read/write database.
func NewSentinelRunRepository() *SentinelRunRepository {
	return &SentinelRunRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SentinelRunRepository) WithDB(db *gorm.DB) *SentinelRunRepository {
	return &SentinelRunRepository{db: db}
}

// Create appends a run record.
func (r *SentinelRunRepository) Create(ctx context.Context, run *model.SentinelRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SentinelRunRepository",
			"op":     "Create",
			"run_id": run.RunID,
		}).WithError(err).Error("Failed to record sentinel run")
	}
	return err
}

// Save persists the final fields of an existing run record.
func (r *SentinelRunRepository) Save(ctx context.Context, run *model.SentinelRun) error {
	err := r.db.WithContext(ctx).Save(run).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SentinelRunRepository",
			"op":     "Save",
			"run_id": run.RunID,
		}).WithError(err).Error("Failed to update sentinel run")
	}
	return err
}

// FindLatest returns the latest runs ordered from newest to oldest.
func (r *SentinelRunRepository) FindLatest(ctx context.Context, limit int) ([]model.SentinelRun, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []model.SentinelRun
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// FindSince returns runs created at or after the given time, oldest
// first.
func (r *SentinelRunRepository) FindSince(ctx context.Context, since time.Time) ([]model.SentinelRun, error) {
	var runs []model.SentinelRun
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
