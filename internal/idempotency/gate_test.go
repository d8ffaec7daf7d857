package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"paymentcore/internal/models"
)

// fakeStore is an in-memory stand-in for the transaction repository,
// used the same way the orchestrator tests fake out the store.
type fakeStore struct {
	byID  map[string]*models.Transaction
	byKey map[string]*models.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]*models.Transaction{}, byKey: map[string]*models.Transaction{}}
}

func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return f.byKey[key], nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	return f.byID[id], nil
}

func (f *fakeStore) insert(key string, tx *models.Transaction) {
	f.byID[tx.ID.String()] = tx
	if key != "" {
		f.byKey[key] = tx
	}
}

func TestReserveWinnerOnly(t *testing.T) {
	cache := NewCache(time.Minute)
	store := newFakeStore()
	gate := NewGate(cache, store)

	id1 := uuid.New().String()
	id2 := uuid.New().String()

	if !gate.Reserve("K1", id1) {
		t.Fatal("first reservation should win")
	}
	if gate.Reserve("K1", id2) {
		t.Fatal("second reservation with the same key must lose")
	}
}

func TestLookupFallsThroughToStore(t *testing.T) {
	cache := NewCache(time.Minute)
	store := newFakeStore()
	gate := NewGate(cache, store)

	tx := &models.Transaction{ID: uuid.New()}
	store.insert("K2", tx)

	found, err := gate.Lookup(context.Background(), "K2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != tx.ID {
		t.Fatalf("expected store fallback to surface the existing transaction, got %v", found)
	}
	if _, ok := cache.Get(keyPrefix + "K2"); !ok {
		t.Fatal("expected lookup to repopulate the cache on a store hit")
	}
}

func TestLookupMissReturnsNil(t *testing.T) {
	cache := NewCache(time.Minute)
	store := newFakeStore()
	gate := NewGate(cache, store)

	found, err := gate.Lookup(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for an unseen key, got %v", found)
	}
}

func TestLookupRejectsOversizedKey(t *testing.T) {
	cache := NewCache(time.Minute)
	store := newFakeStore()
	gate := NewGate(cache, store)

	oversized := make([]byte, 256)
	if _, err := gate.Lookup(context.Background(), string(oversized)); err != ErrKeyTooLong {
		t.Fatalf("expected ErrKeyTooLong, got %v", err)
	}
}

func TestGenerateIsUniqueAndHex(t *testing.T) {
	a := Generate()
	b := Generate()
	if a == b {
		t.Fatal("expected two generated keys to differ")
	}
	if len(a) != 32 {
		t.Fatalf("expected a 32-char hex key, got %d chars", len(a))
	}
}
