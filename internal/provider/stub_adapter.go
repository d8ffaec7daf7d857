package provider

import (
	"context"
	"fmt"
	"time"

	"paymentcore/internal/models"
)

// StubAdapter is a deterministic, no-network adapter for local
// development and tests: it always succeeds, minting a synthetic
// provider reference from the transaction's own reference_id.
type StubAdapter struct{}

func NewStubAdapter() *StubAdapter {
	return &StubAdapter{}
}

func (s *StubAdapter) Charge(ctx context.Context, tx *models.Transaction) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	return Result{
		Ok:          true,
		ProviderRef: fmt.Sprintf("stub_%s_%d", tx.ReferenceID, time.Now().UnixNano()),
	}, nil
}
