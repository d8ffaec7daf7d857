package models

import (
	"time"

	"github.com/google/uuid"

	"paymentcore/internal/domain"
	"paymentcore/internal/money"
)

// Transaction is the unit of work the whole core revolves around.
// Rows are never deleted; status moves forward only (domain.CanTransition).
type Transaction struct {
	ID              uuid.UUID               `gorm:"type:char(36);primaryKey" json:"id"`
	ReferenceID     string                  `gorm:"size:64;uniqueIndex;not null" json:"reference_id"`
	IdempotencyKey  *string                 `gorm:"size:255;uniqueIndex" json:"-"`
	UserID          string                  `gorm:"size:128;index;not null" json:"user_id"`
	MerchantID      string                  `gorm:"size:128;index;not null" json:"merchant_id"`
	Amount          money.Amount            `gorm:"type:decimal(19,4);not null" json:"amount"`
	Currency        string                  `gorm:"size:3;not null" json:"currency"`
	PaymentMethod   domain.PaymentMethod    `gorm:"size:16;not null" json:"payment_method"`
	PaymentProvider string                  `gorm:"size:64" json:"payment_provider"`
	ProviderRef     string                  `gorm:"size:128" json:"provider_ref,omitempty"`
	Status          domain.TransactionStatus `gorm:"size:16;not null;index" json:"status"`
	FraudScore      money.Amount            `gorm:"type:decimal(3,2)" json:"fraud_score"`
	ErrorCode       string                  `gorm:"size:64" json:"error_code,omitempty"`
	ErrorMessage    string                  `gorm:"size:512" json:"error_message,omitempty"`
	WebhookURL      string                  `gorm:"size:512" json:"-"`
	WebhookAttempts int                     `gorm:"default:0" json:"-"`
	WebhookLastAt   *time.Time              `json:"-"`
	Description     string                  `gorm:"size:512" json:"description,omitempty"`
	Metadata        string                  `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt       time.Time               `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// IsTerminal mirrors domain.TransactionStatus.Terminal for call sites
// that only hold a *Transaction.
func (t *Transaction) IsTerminal() bool {
	return t.Status.Terminal()
}
