package models

import (
	"time"

	"github.com/google/uuid"

	"paymentcore/internal/domain"
)

// AuditLog is an append-only trail of everything that happened to a
// transaction. Rows are immutable once written.
type AuditLog struct {
	ID            uuid.UUID        `gorm:"type:char(36);primaryKey" json:"id"`
	TransactionID uuid.UUID        `gorm:"type:char(36);index;not null" json:"transaction_id"`
	EventType     domain.EventType `gorm:"size:32;not null;index" json:"event_type"`
	EventData     string           `gorm:"type:text" json:"event_data,omitempty"`
	UserID        string           `gorm:"size:128;index" json:"user_id,omitempty"`
	IP            string           `gorm:"size:45" json:"ip,omitempty"`
	UserAgent     string           `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
