package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is one outbound notification batch for a terminal
// transaction. The dispatcher owns every mutating field; Attempts is
// incremented only through record_webhook_attempt-style atomic updates.
type WebhookEvent struct {
	ID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	TransactionID  uuid.UUID  `gorm:"type:char(36);index;not null" json:"transaction_id"`
	URL            string     `gorm:"size:512;not null" json:"url"`
	Payload        string     `gorm:"type:text;not null" json:"payload"`
	ResponseStatus *int       `json:"response_status,omitempty"`
	ResponseBody   string     `gorm:"type:text" json:"response_body,omitempty"`
	Attempts       int        `gorm:"default:0" json:"attempts"`
	MaxAttempts    int        `gorm:"default:3" json:"max_attempts"`
	NextRetryAt    *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// Terminal reports whether delivery has stopped (2xx seen, or attempts
// exhausted).
func (w *WebhookEvent) Terminal() bool {
	if w.ResponseStatus != nil && *w.ResponseStatus >= 200 && *w.ResponseStatus < 300 {
		return true
	}
	return w.Attempts >= w.MaxAttempts
}
