// Package idempotency implements the at-most-once admission gate:
// lookup/reserve/release/generate over a fast cache backed by the
// transaction store's UNIQUE(idempotency_key) column as the durable,
// authoritative fallback.
package idempotency

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"paymentcore/internal/models"
)

const keyPrefix = "idempotency:"

// ErrKeyTooLong is returned by Lookup for a key over 255 chars.
var ErrKeyTooLong = errors.New("idempotency: key exceeds 255 characters")

// Finder is the read slice of the transaction store the gate needs. It
// is satisfied by *repository.TransactionRepository without this
// package importing it directly, avoiding an import cycle.
type Finder interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
}

// Gate composes the fast cache and the durable store into a single
// lookup/reserve/release/generate contract for admission.
type Gate struct {
	cache *Cache
	store Finder
}

func NewGate(cache *Cache, store Finder) *Gate {
	return &Gate{cache: cache, store: store}
}

// Lookup consults the cache, falling through to the store on a miss and
// repopulating the cache when the store has a row. A nil, nil result
// means neither layer has seen this key.
func (g *Gate) Lookup(ctx context.Context, key string) (*models.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	if len(key) > 255 {
		return nil, ErrKeyTooLong
	}
	if txID, ok := g.cache.Get(keyPrefix + key); ok {
		tx, err := g.store.FindByID(ctx, txID)
		if err == nil && tx != nil {
			return tx, nil
		}
		// cache pointed at a row we can no longer see (e.g. different
		// replica lag); fall through to the authoritative store lookup.
	}
	tx, err := g.store.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if tx != nil {
		g.cache.Set(keyPrefix+key, tx.ID.String())
	}
	return tx, nil
}

// Reserve atomically claims key -> txID in the cache. Only the caller
// that gets true back may proceed to insert the transaction row; every
// other caller must re-run Lookup and return its result, never creating
// a second row.
func (g *Gate) Reserve(key, txID string) bool {
	if key == "" {
		return true
	}
	return g.cache.SetIfAbsent(keyPrefix+key, txID)
}

// Release is intentionally unused by every admission failure path:
// this gate's policy is never release, let the TTL expire. The method
// stays exported only so a future admin/ops tool has a documented,
// explicit escape hatch rather than reaching into the cache directly.
func (g *Gate) Release(key string) {
	if key == "" {
		return
	}
	g.cache.Delete(keyPrefix + key)
}

// Generate returns a fresh random idempotency key for callers that
// omitted one.
func Generate() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("idempotency: failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
