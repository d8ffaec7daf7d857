// Package orchestrator implements the payment orchestrator:
// admission (Initiate), asynchronous advancement (Process), and the
// read-only FetchStatus surface — the component the rest of the core
// exists to serve.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paymentcore/internal/domain"
	"paymentcore/internal/eventbus"
	"paymentcore/internal/fraud"
	"paymentcore/internal/idempotency"
	"paymentcore/internal/models"
	"paymentcore/internal/provider"
	"paymentcore/internal/repository"
	"paymentcore/internal/webhook"
)

// Store is the slice of the transaction store the orchestrator needs.
// Satisfied by *repository.TransactionRepository; declared here so
// this package can be unit tested against an in-memory fake without
// a database.
type Store interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus, errCode, errMessage string) error
	SetProviderRef(ctx context.Context, id, providerRef string) error
}

// AuditAppender is the audit log's write surface.
type AuditAppender interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

// WebhookEnqueuer is the webhook table's write surface, used only to
// create the initial row; the dispatcher owns every later mutation.
type WebhookEnqueuer interface {
	Insert(ctx context.Context, evt *models.WebhookEvent) error
}

// Service wires the idempotency gate, fraud scorer, transaction
// store, event bus and provider registry into admission and
// advancement.
type Service struct {
	store           Store
	auditRepo       AuditAppender
	webhookRepo     WebhookEnqueuer
	gate            *idempotency.Gate
	scorer          *fraud.Scorer
	bus             eventbus.Bus
	providers       provider.Registry
	log             *zap.Logger
	providerTimeout time.Duration
	webhookAttempts int
}

func NewService(
	store Store,
	auditRepo AuditAppender,
	webhookRepo WebhookEnqueuer,
	gate *idempotency.Gate,
	scorer *fraud.Scorer,
	bus eventbus.Bus,
	providers provider.Registry,
	log *zap.Logger,
	providerTimeout time.Duration,
	webhookMaxAttempts int,
) *Service {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	if webhookMaxAttempts <= 0 {
		webhookMaxAttempts = 3
	}
	return &Service{
		store:           store,
		auditRepo:       auditRepo,
		webhookRepo:     webhookRepo,
		gate:            gate,
		scorer:          scorer,
		bus:             bus,
		providers:       providers,
		log:             log,
		providerTimeout: providerTimeout,
		webhookAttempts: webhookMaxAttempts,
	}
}

// Initiate runs the full admission sequence: idempotency lookup,
// validation, fraud scoring, reservation, persistence, and publish.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*models.Transaction, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = idempotency.Generate()
	}

	existing, err := s.gate.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, idempotency.ErrKeyTooLong) {
			return nil, &ValidationError{Field: "idempotency_key", Message: "must not exceed 255 characters"}
		}
		return nil, &TransientInfraError{Err: err}
	}
	if existing != nil {
		return existing, nil
	}

	if err := validate(req); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:              uuid.New(),
		ReferenceID:     generateReferenceID(),
		IdempotencyKey:  &key,
		UserID:          req.UserID,
		MerchantID:      req.MerchantID,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Currency),
		PaymentMethod:   req.PaymentMethod,
		PaymentProvider: req.PaymentProvider,
		Status:          domain.StatusPending,
		WebhookURL:      req.WebhookURL,
		Description:     req.Description,
		Metadata:        req.Metadata,
	}

	score := s.scorer.Score(fraud.Request{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		CardNumber:    req.CardNumber,
		CVV:           req.CVV,
	})
	tx.FraudScore = score
	blocked := s.scorer.ShouldBlock(score)
	if blocked {
		tx.Status = domain.StatusFailed
		tx.ErrorCode = domain.ErrCodeFraudBlocked
		tx.ErrorMessage = fmt.Sprintf("fraud score %s at or above threshold", score.String())
	}

	if !s.gate.Reserve(key, tx.ID.String()) {
		again, err := s.gate.Lookup(ctx, key)
		if err != nil {
			return nil, &TransientInfraError{Err: err}
		}
		if again != nil {
			return again, nil
		}
		return nil, &IdempotencyConflict{}
	}

	if err := s.store.Insert(ctx, tx); err != nil {
		if isDuplicateKeyErr(err) {
			again, lookupErr := s.gate.Lookup(ctx, key)
			if lookupErr == nil && again != nil {
				return again, nil
			}
		}
		return nil, &TransientInfraError{Err: err}
	}

	scoreF, _ := score.Float64()
	_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventFraudCheck, req.UserID, fmt.Sprintf(`{"score":%.2f,"blocked":%t}`, scoreF, blocked)))

	if blocked {
		_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventPaymentFailed, req.UserID, tx.ErrorMessage))
		s.publish(ctx, tx, domain.EventPaymentFailed)
		s.enqueueWebhook(ctx, tx)
		return tx, nil
	}

	_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventPaymentInitiated, req.UserID, ""))
	s.publish(ctx, tx, domain.EventPaymentInitiated)
	return tx, nil
}

// Process is triggered by a consumer of PAYMENT_INITIATED and absorbs
// every provider/processing failure into the transaction record rather
// than returning it to the caller: a non-nil return means the bus
// message should be redelivered because the step that failed was
// infrastructural, not the business outcome.
func (s *Service) Process(ctx context.Context, txID string) error {
	tx, err := s.store.FindByID(ctx, txID)
	if err != nil {
		return &TransientInfraError{Err: err}
	}
	if tx == nil || tx.Status != domain.StatusPending {
		return nil
	}

	if err := s.store.UpdateStatus(ctx, txID, domain.StatusPending, domain.StatusProcessing, "", ""); err != nil {
		if errors.Is(err, repository.ErrCASFailed) {
			return nil
		}
		return &TransientInfraError{Err: err}
	}
	tx.Status = domain.StatusProcessing
	_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventPaymentProcessed, tx.UserID, ""))
	s.publish(ctx, tx, domain.EventPaymentProcessed)

	adapter, ok := s.providers.For(string(tx.PaymentMethod))
	if !ok {
		return s.fail(ctx, tx, domain.ErrCodeProcessingError, fmt.Sprintf("no provider adapter registered for method %s", tx.PaymentMethod))
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	result, chargeErr := adapter.Charge(chargeCtx, tx)
	if chargeErr != nil {
		if errors.Is(chargeErr, context.DeadlineExceeded) {
			return s.fail(ctx, tx, domain.ErrCodeProviderTimeout, "provider call exceeded its deadline")
		}
		return s.fail(ctx, tx, domain.ErrCodeProcessingError, chargeErr.Error())
	}
	if !result.Ok {
		return s.fail(ctx, tx, result.FailureCode, result.FailureMessage)
	}

	if result.ProviderRef != "" {
		if err := s.store.SetProviderRef(ctx, tx.ID.String(), result.ProviderRef); err != nil {
			s.log.Error("orchestrator: failed to stamp provider_ref", zap.String("transaction_id", txID), zap.Error(err))
		}
		tx.ProviderRef = result.ProviderRef
	}

	if err := s.store.UpdateStatus(ctx, txID, domain.StatusProcessing, domain.StatusSuccess, "", ""); err != nil {
		if errors.Is(err, repository.ErrCASFailed) {
			return nil
		}
		return &TransientInfraError{Err: err}
	}
	tx.Status = domain.StatusSuccess
	_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventPaymentSuccess, tx.UserID, ""))
	s.publish(ctx, tx, domain.EventPaymentSuccess)
	s.enqueueWebhook(ctx, tx)
	return nil
}

// fail CASes a PROCESSING transaction to FAILED and records the
// outcome. It returns nil whenever the mutation itself succeeded —
// the failure is business-level and must not trigger bus redelivery.
func (s *Service) fail(ctx context.Context, tx *models.Transaction, code, message string) error {
	if err := s.store.UpdateStatus(ctx, tx.ID.String(), domain.StatusProcessing, domain.StatusFailed, code, message); err != nil {
		if errors.Is(err, repository.ErrCASFailed) {
			return nil
		}
		return &TransientInfraError{Err: err}
	}
	tx.Status = domain.StatusFailed
	tx.ErrorCode = code
	tx.ErrorMessage = message
	_ = s.auditRepo.Append(ctx, auditEntry(tx.ID, domain.EventPaymentFailed, tx.UserID, message))
	s.publish(ctx, tx, domain.EventPaymentFailed)
	s.enqueueWebhook(ctx, tx)
	return nil
}

// FetchStatus is the read-only surface behind GET /status/{id}. id is
// tried first as a transaction id, falling back to reference_id.
func (s *Service) FetchStatus(ctx context.Context, id string) (*models.Transaction, error) {
	if _, err := uuid.Parse(id); err == nil {
		tx, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, &TransientInfraError{Err: err}
		}
		if tx != nil {
			return tx, nil
		}
	}
	tx, err := s.store.FindByReference(ctx, id)
	if err != nil {
		return nil, &TransientInfraError{Err: err}
	}
	return tx, nil
}

func (s *Service) publish(ctx context.Context, tx *models.Transaction, eventType domain.EventType) {
	evt := eventbus.PaymentEvent{
		TransactionID:   tx.ID.String(),
		ReferenceID:     tx.ReferenceID,
		UserID:          tx.UserID,
		MerchantID:      tx.MerchantID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		PaymentMethod:   tx.PaymentMethod,
		PaymentProvider: tx.PaymentProvider,
		Status:          tx.Status,
		FraudScore:      tx.FraudScore,
		ErrorCode:       tx.ErrorCode,
		ErrorMessage:    tx.ErrorMessage,
		WebhookURL:      tx.WebhookURL,
		EventType:       eventType,
		EventTimestamp:  time.Now().UTC(),
	}
	if err := s.bus.Publish(ctx, domain.TopicPaymentEvents, tx.ID.String(), evt); err != nil {
		s.log.Error("orchestrator: publish failed", zap.String("transaction_id", tx.ID.String()), zap.String("event_type", string(eventType)), zap.Error(err))
	}
	if tx.Status.Terminal() {
		if err := s.bus.Publish(ctx, domain.TopicPaymentResults, tx.ID.String(), evt); err != nil {
			s.log.Error("orchestrator: mirror publish failed", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		}
	}
}

func (s *Service) enqueueWebhook(ctx context.Context, tx *models.Transaction) {
	if tx.WebhookURL == "" {
		return
	}
	payload, err := webhook.Marshal(webhook.BuildPayload(tx))
	if err != nil {
		s.log.Error("orchestrator: failed to build webhook payload", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	evt := &models.WebhookEvent{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		URL:           tx.WebhookURL,
		Payload:       payload,
		MaxAttempts:   s.webhookAttempts,
		NextRetryAt:   &now,
	}
	if err := s.webhookRepo.Insert(ctx, evt); err != nil {
		s.log.Error("orchestrator: failed to enqueue webhook", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}
}

func auditEntry(txID uuid.UUID, eventType domain.EventType, userID, data string) *models.AuditLog {
	return &models.AuditLog{
		ID:            uuid.New(),
		TransactionID: txID,
		EventType:     eventType,
		EventData:     data,
		UserID:        userID,
		CreatedAt:     time.Now().UTC(),
	}
}

// generateReferenceID produces the human-visible TXN<epoch-ms><rand8>
// identifier merchants see in webhook payloads and status responses.
func generateReferenceID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "TXN" + strconv.FormatInt(time.Now().UnixMilli(), 10) + hex.EncodeToString(b)
}

// isDuplicateKeyErr detects a unique-constraint violation on MySQL's
// own error text rather than importing the driver's error type for a
// single string check.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
