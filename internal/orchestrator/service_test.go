package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paymentcore/internal/domain"
	"paymentcore/internal/eventbus"
	"paymentcore/internal/fraud"
	"paymentcore/internal/idempotency"
	"paymentcore/internal/models"
	"paymentcore/internal/money"
	"paymentcore/internal/provider"
	"paymentcore/internal/repository"
)

// fakeStore is an in-process stand-in for *repository.TransactionRepository,
// faithful enough to exercise the CAS and uniqueness invariants the real
// store enforces.
type fakeStore struct {
	mu   sync.Mutex
	byID map[string]*models.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]*models.Transaction{}}
}

func (f *fakeStore) Insert(ctx context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.ReferenceID == tx.ReferenceID {
			return errors.New("Error 1062: Duplicate entry for key 'transactions.reference_id'")
		}
		if tx.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *tx.IdempotencyKey {
			return errors.New("Error 1062: Duplicate entry for key 'transactions.idempotency_key'")
		}
	}
	copy := *tx
	f.byID[tx.ID.String()] = &copy
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	copy := *tx
	return &copy, nil
}

func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.byID {
		if tx.IdempotencyKey != nil && *tx.IdempotencyKey == key {
			copy := *tx
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.byID {
		if tx.ReferenceID == referenceID {
			copy := *tx
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus, errCode, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok || tx.Status != from || !domain.CanTransition(from, to) {
		return repository.ErrCASFailed
	}
	tx.Status = to
	if to == domain.StatusFailed {
		tx.ErrorCode = errCode
		tx.ErrorMessage = errMessage
	}
	return nil
}

func (f *fakeStore) SetProviderRef(ctx context.Context, id, providerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return errors.New("not found")
	}
	tx.ProviderRef = providerRef
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (f *fakeAudit) Append(ctx context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeWebhookEnqueuer struct {
	mu    sync.Mutex
	count int
}

func (f *fakeWebhookEnqueuer) Insert(ctx context.Context, evt *models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []eventbus.PaymentEvent
}

func (f *fakeBus) Publish(ctx context.Context, topic, key string, event eventbus.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, topic, groupID string, handler eventbus.Handler) error {
	return nil
}

func (f *fakeBus) Close() error { return nil }

type fakeAdapter struct {
	result provider.Result
	err    error
}

func (f *fakeAdapter) Charge(ctx context.Context, tx *models.Transaction) (provider.Result, error) {
	return f.result, f.err
}

func newTestService(t *testing.T, adapter provider.Adapter) (*Service, *fakeStore, *fakeWebhookEnqueuer) {
	t.Helper()
	store := newFakeStore()
	audit := &fakeAudit{}
	webhooks := &fakeWebhookEnqueuer{}
	cache := idempotency.NewCache(time.Minute)
	gate := idempotency.NewGate(cache, store)
	scorer := fraud.NewScorer(true, fraud.DefaultThreshold)
	bus := &fakeBus{}
	registry := provider.Registry{string(domain.MethodCard): adapter}
	log := zap.NewNop()
	svc := NewService(store, audit, webhooks, gate, scorer, bus, registry, log, time.Second, 3)
	return svc, store, webhooks
}

func cardRequest(key string) InitiateRequest {
	return InitiateRequest{
		UserID:         "user-1",
		MerchantID:     "merchant-1",
		Amount:         money.FromFloat(49.99),
		Currency:       "USD",
		PaymentMethod:  domain.MethodCard,
		CardNumber:     "4242424242424242",
		CVV:            "123",
		IdempotencyKey: key,
	}
}

// Scenario 1: fresh card payment succeeds end to end.
func TestInitiateThenProcess_FreshCardPayment(t *testing.T) {
	svc, store, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true, ProviderRef: "ref-123"}})

	tx, err := svc.Initiate(context.Background(), cardRequest("K1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", tx.Status)
	}
	if tx.ReferenceID[:3] != "TXN" {
		t.Fatalf("expected reference_id to start with TXN, got %s", tx.ReferenceID)
	}

	if err := svc.Process(context.Background(), tx.ID.String()); err != nil {
		t.Fatalf("unexpected process error: %v", err)
	}
	stored, _ := store.FindByID(context.Background(), tx.ID.String())
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", stored.Status)
	}
}

// Scenario 2: duplicate initiations under concurrent flap collapse to one row.
func TestInitiate_DuplicateUnderConcurrentFlap(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true}})

	var wg sync.WaitGroup
	results := make([]*models.Transaction, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := svc.Initiate(context.Background(), cardRequest("K2"))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = tx
		}(i)
	}
	wg.Wait()
	if results[0] == nil || results[1] == nil {
		t.Fatal("both calls should succeed")
	}
	if results[0].ID != results[1].ID {
		t.Fatalf("expected the same transaction id, got %s and %s", results[0].ID, results[1].ID)
	}
}

// Scenario 3: fraud-blocked admission persists as FAILED without calling the provider.
func TestInitiate_FraudBlock(t *testing.T) {
	calls := 0
	adapter := &countingAdapter{fakeAdapter: fakeAdapter{result: provider.Result{Ok: true}}, calls: &calls}
	svc, _, webhooks := newTestService(t, adapter)

	req := cardRequest("K3")
	req.Amount = money.FromFloat(75000)
	req.CardNumber = "1234"
	// CVV stays "123": validation requires one for card payments, and the
	// malformed PAN plus the huge amount already cross the threshold.

	tx, err := svc.Initiate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != domain.StatusFailed || tx.ErrorCode != domain.ErrCodeFraudBlocked {
		t.Fatalf("expected FAILED/FRAUD_BLOCKED, got %s/%s", tx.Status, tx.ErrorCode)
	}
	if calls != 0 {
		t.Fatalf("expected the provider to never be called, got %d calls", calls)
	}
	_ = webhooks
}

type countingAdapter struct {
	fakeAdapter
	calls *int
}

func (c *countingAdapter) Charge(ctx context.Context, tx *models.Transaction) (provider.Result, error) {
	*c.calls++
	return c.fakeAdapter.Charge(ctx, tx)
}

// Scenario 5: redelivering the same PAYMENT_INITIATED event twice
// produces exactly one PENDING -> PROCESSING -> SUCCESS path.
func TestProcess_ConsumerRedeliveryIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true, ProviderRef: "ref-x"}})

	tx, err := svc.Initiate(context.Background(), cardRequest("K5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Process(context.Background(), tx.ID.String()); err != nil {
		t.Fatalf("unexpected error on first delivery: %v", err)
	}
	if err := svc.Process(context.Background(), tx.ID.String()); err != nil {
		t.Fatalf("unexpected error on redelivered message: %v", err)
	}

	stored, _ := store.FindByID(context.Background(), tx.ID.String())
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS after redelivery, got %s", stored.Status)
	}
}

// Scenario 6: two initiations with no idempotency key create two rows.
func TestInitiate_MissingKeyCreatesDistinctTransactions(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true}})

	first, err := svc.Initiate(context.Background(), cardRequest(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Initiate(context.Background(), cardRequest(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected two distinct transactions when no idempotency key is supplied")
	}
}

// Provider failure moves the transaction to FAILED and enqueues a webhook.
func TestProcess_ProviderFailureEnqueuesWebhook(t *testing.T) {
	svc, store, webhooks := newTestService(t, &fakeAdapter{result: provider.Result{Ok: false, FailureCode: "DECLINED", FailureMessage: "card declined"}})

	req := cardRequest("K-fail")
	req.WebhookURL = "https://merchant.example.com/webhooks/payments"
	tx, err := svc.Initiate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Process(context.Background(), tx.ID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := store.FindByID(context.Background(), tx.ID.String())
	if stored.Status != domain.StatusFailed || stored.ErrorCode != "DECLINED" {
		t.Fatalf("expected FAILED/DECLINED, got %s/%s", stored.Status, stored.ErrorCode)
	}
	if webhooks.count != 1 {
		t.Fatalf("expected exactly one webhook enqueued, got %d", webhooks.count)
	}
}

func TestValidateRejectsNonPositiveAmount(t *testing.T) {
	req := cardRequest("K-invalid")
	req.Amount = money.FromFloat(0)
	err := validate(req)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
}

func TestFetchStatus_UnknownUUIDReturnsNil(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true}})
	found, err := svc.FetchStatus(context.Background(), uuid.New().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for an unknown transaction id, got %v", found)
	}
}

func TestFetchStatus_ByReferenceID(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeAdapter{result: provider.Result{Ok: true}})
	tx, err := svc.Initiate(context.Background(), cardRequest("K-status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found, err := svc.FetchStatus(context.Background(), tx.ReferenceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != tx.ID {
		t.Fatalf("expected to find transaction by reference_id, got %v", found)
	}
}
