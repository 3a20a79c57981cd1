package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// DirectiveRepository persists the single current CEO directive.
// Generating a new directive fully replaces the old one.
type DirectiveRepository struct {
	db *gorm.DB
}

// NewDirectiveRepository creates a new repository instance using the
// main read/write database.
func NewDirectiveRepository() *DirectiveRepository {
	return &DirectiveRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *DirectiveRepository) WithDB(db *gorm.DB) *DirectiveRepository {
	return &DirectiveRepository{db: db}
}

// GetCurrent loads the current directive. Returns (nil, nil) when no
// directive has been generated yet.
func (r *DirectiveRepository) GetCurrent(ctx context.Context) (*model.CEODirective, error) {
	var directive model.CEODirective
	err := r.db.WithContext(ctx).First(&directive, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &directive, nil
}

// Replace upserts the singleton row, making the given directive current.
func (r *DirectiveRepository) Replace(ctx context.Context, directive *model.CEODirective) error {
	directive.ID = 1
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"regime", "bias", "risk_level", "coins_json", "zones_json",
			"risk_guidelines", "avoid_list", "escalation_triggers",
			"summary", "generated_at", "expires_at", "updated_at",
		}),
	}).Create(directive).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "DirectiveRepository",
			"op":   "Replace",
		}).WithError(err).Error("Failed to replace directive")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"regime": directive.Regime,
		"bias":   directive.Bias,
		"risk":   directive.RiskLevel,
	}).Info("CEO directive replaced")

	return nil
}
