package orchestrator

import "fmt"

// ValidationError surfaces as a 4xx to the caller; no row is ever
// persisted for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// FraudBlockedError reports that admission scored above threshold.
// It carries only the score. Initiate does not return it: a blocked
// admission is persisted as a FAILED transaction with FRAUD_BLOCKED
// and returned without an error.
type FraudBlockedError struct {
	Score float64
}

func (e *FraudBlockedError) Error() string {
	return fmt.Sprintf("fraud: score %.2f at or above threshold", e.Score)
}

// ProviderError describes a provider failure by code and message.
// Process does not return it: provider failures are written onto the
// transaction as error_code/error_message and Process returns nil.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: %s: %s", e.Code, e.Message)
}

// ProviderTimeoutError specializes ProviderError for a deadline that
// the adapter's own context hit.
type ProviderTimeoutError struct{}

func (e *ProviderTimeoutError) Error() string {
	return "provider: call exceeded its deadline"
}

// TransientInfraError wraps a cache/bus/DB failure. Initiate maps this
// to a 5xx; Process leaves the transaction in its current state so
// at-least-once redelivery retries the step that failed.
type TransientInfraError struct {
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infra error: %v", e.Err)
}

func (e *TransientInfraError) Unwrap() error {
	return e.Err
}

// IdempotencyConflict signals that Reserve lost a race. Callers never
// surface this to the caller directly — they re-run Lookup and return
// its result instead.
type IdempotencyConflict struct{}

func (e *IdempotencyConflict) Error() string {
	return "idempotency: reservation lost the race"
}
