package model

import "time"

// ExchangeCredential stores one exchange API key pair. Key and secret are
// encrypted at rest (see src/security); the gateway decrypts them when it
// builds a client.
type ExchangeCredential struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Exchange      string `gorm:"size:40;uniqueIndex" json:"exchange"`
	APIKeyHash    string `gorm:"size:512" json:"-"`
	APISecretHash string `gorm:"size:512" json:"-"`
	Sandbox       bool   `json:"sandbox"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}
