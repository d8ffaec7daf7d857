// Package provider holds the outbound payment-provider adapters. Each
// adapter translates a Transaction into whatever wire call its
// upstream rail expects and reports back a normalized Result; the
// orchestrator never sees provider-specific request/response shapes.
package provider

import (
	"context"

	"paymentcore/internal/models"
)

// Result is the normalized outcome of a Charge call. Exactly one of
// the success or failure fields is meaningful, discriminated by Ok.
type Result struct {
	Ok bool

	ProviderRef  string
	ClientSecret string
	RedirectURL  string

	FailureCode    string
	FailureMessage string
}

// Adapter charges a transaction against a specific payment rail.
// Implementations must treat ctx's deadline as authoritative — the
// orchestrator sets a bounded timeout and maps a
// context.DeadlineExceeded return into a terminal FAILED transaction
// with error_code PROVIDER_TIMEOUT, distinct from a rail-reported
// decline.
type Adapter interface {
	Charge(ctx context.Context, tx *models.Transaction) (Result, error)
}

// Registry resolves the adapter to use for a transaction's payment
// method. The orchestrator is constructed with one Registry and never
// branches on PaymentMethod itself.
type Registry map[string]Adapter

func (r Registry) For(method string) (Adapter, bool) {
	a, ok := r[method]
	return a, ok
}
