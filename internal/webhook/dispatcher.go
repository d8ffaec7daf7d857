package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paymentcore/internal/domain"
	"paymentcore/internal/models"
)

// Repository is the webhook table's read/write surface the dispatcher
// needs. Satisfied by *repository.WebhookRepository.
type Repository interface {
	FindPending(ctx context.Context, now time.Time, limit int) ([]models.WebhookEvent, error)
	RecordAttempt(ctx context.Context, id string, observedAttempts int, status *int, body string, nextRetryAt *time.Time) error
}

// AuditAppender is the audit log's write surface.
type AuditAppender interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

// Dispatcher is a scheduled polling loop: each tick it fetches due
// WebhookEvent rows and attempts delivery with exponential backoff on
// failure.
type Dispatcher struct {
	repo      Repository
	auditRepo AuditAppender
	client    *http.Client
	log       *zap.Logger
	secret    string
	period    time.Duration
	batchSize int
	baseDelay time.Duration
}

func NewDispatcher(repo Repository, auditRepo AuditAppender, log *zap.Logger, secret string, period, timeout, baseDelay time.Duration, batchSize int) *Dispatcher {
	if period <= 0 {
		period = time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		repo:      repo,
		auditRepo: auditRepo,
		client:    &http.Client{Timeout: timeout},
		log:       log,
		secret:    secret,
		period:    period,
		batchSize: batchSize,
		baseDelay: baseDelay,
	}
}

// Run blocks, ticking until ctx is cancelled. Call it from its own
// goroutine from cmd/server/main.go.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	evts, err := d.repo.FindPending(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		d.log.Error("webhook: failed to load pending events", zap.Error(err))
		return
	}
	for i := range evts {
		d.attempt(ctx, &evts[i])
	}
}

func (d *Dispatcher) attempt(ctx context.Context, evt *models.WebhookEvent) {
	body := []byte(evt.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, evt.URL, bytes.NewReader(body))
	if err != nil {
		d.log.Error("webhook: failed to build request", zap.String("webhook_id", evt.ID.String()), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(d.secret, body))
	}

	observed := evt.Attempts
	resp, err := d.client.Do(req)
	if err != nil {
		d.recordFailure(ctx, evt, observed, nil, err.Error())
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	status := resp.StatusCode
	if status >= 200 && status < 300 {
		d.recordSuccess(ctx, evt, observed, status, string(respBody))
		return
	}
	d.recordFailure(ctx, evt, observed, &status, string(respBody))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, evt *models.WebhookEvent, observed, status int, body string) {
	if err := d.repo.RecordAttempt(ctx, evt.ID.String(), observed, &status, body, nil); err != nil {
		d.log.Error("webhook: failed to record successful attempt", zap.String("webhook_id", evt.ID.String()), zap.Error(err))
		return
	}
	_ = d.auditRepo.Append(ctx, &models.AuditLog{
		ID:            uuid.New(),
		TransactionID: evt.TransactionID,
		EventType:     domain.EventWebhookSent,
		EventData:     fmt.Sprintf(`{"response_status":%d}`, status),
		CreatedAt:     time.Now().UTC(),
	})
}

// recordFailure increments attempts and, if the new count is still
// under max_attempts, schedules the next retry with jittered
// exponential backoff. Exhausted retries are terminal and audited as
// WEBHOOK_FAILED.
func (d *Dispatcher) recordFailure(ctx context.Context, evt *models.WebhookEvent, observed int, status *int, body string) {
	nextAttempts := observed + 1
	var nextRetryAt *time.Time
	if nextAttempts < evt.MaxAttempts {
		at := time.Now().UTC().Add(backoffDelay(d.baseDelay, nextAttempts))
		nextRetryAt = &at
	}
	if err := d.repo.RecordAttempt(ctx, evt.ID.String(), observed, status, body, nextRetryAt); err != nil {
		d.log.Error("webhook: failed to record failed attempt", zap.String("webhook_id", evt.ID.String()), zap.Error(err))
		return
	}
	if nextRetryAt == nil {
		_ = d.auditRepo.Append(ctx, &models.AuditLog{
			ID:            uuid.New(),
			TransactionID: evt.TransactionID,
			EventType:     domain.EventWebhookFailed,
			EventData:     fmt.Sprintf(`{"attempts":%d}`, nextAttempts),
			CreatedAt:     time.Now().UTC(),
		})
	}
}

// backoffDelay computes base * 2^(attempt-1) with +/-20% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration((rand.Float64()*0.4 - 0.2) * float64(delay))
	return delay + jitter
}
