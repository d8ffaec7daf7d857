package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"paymentcore/internal/models"
)

// WebhookRepository owns the webhook_events table. The dispatcher is the
// sole writer of attempt fields; admission only ever Inserts a fresh
// row when a terminal transaction carries a webhook_url.
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Insert(ctx context.Context, evt *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(evt).Error
}

// FindPending returns webhooks due for an attempt: next_retry_at <= now
// and attempts < max_attempts, bounded by limit to cap batch size per
// dispatcher tick.
func (r *WebhookRepository) FindPending(ctx context.Context, now time.Time, limit int) ([]models.WebhookEvent, error) {
	var evts []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("next_retry_at <= ? AND attempts < max_attempts", now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&evts).Error
	return evts, err
}

// RecordAttempt atomically increments attempts and writes the response
// fields plus the next retry time (nil once terminal). Scoped by id and
// the attempts value the dispatcher last observed so two dispatcher
// workers racing on the same row (should not happen — a single poller
// owns each tick — but at-least-once delivery of a crash-recovered tick
// could overlap) cannot double-increment past max_attempts.
func (r *WebhookRepository) RecordAttempt(ctx context.Context, id string, observedAttempts int, status *int, body string, nextRetryAt *time.Time) error {
	updates := map[string]interface{}{
		"attempts":         gorm.Expr("attempts + 1"),
		"response_status":  status,
		"response_body":    body,
		"next_retry_at":    nextRetryAt,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ? AND attempts = ?", id, observedAttempts).
		Updates(updates).Error
}
