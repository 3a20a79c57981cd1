package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesentinel/src/database"
	"tradesentinel/src/model"
)

// CredentialRepository stores encrypted exchange API credentials.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new repository instance using the
// main read/write database.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CredentialRepository) WithDB(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByExchange returns the stored credential for an exchange id, or
// (nil, nil) when none is configured.
func (r *CredentialRepository) GetByExchange(ctx context.Context, exchange string) (*model.ExchangeCredential, error) {
	var cred model.ExchangeCredential
	err := r.db.WithContext(ctx).Where("exchange = ?", exchange).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// Upsert stores or replaces the credential for an exchange.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *model.ExchangeCredential) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exchange"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key_hash", "api_secret_hash", "sandbox", "updated_at"}),
	}).Create(cred).Error
}
