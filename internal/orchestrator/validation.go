package orchestrator

import (
	"paymentcore/internal/domain"
	"paymentcore/internal/money"
)

// InitiateRequest is the orchestrator's own view of a payment
// initiation, decoupled from the HTTP DTO the handler binds: the
// handler's job is JSON decoding and structural binding tags, this
// package's job is the domain-level admission rules.
type InitiateRequest struct {
	UserID          string
	MerchantID      string
	Amount          money.Amount
	Currency        string
	PaymentMethod   domain.PaymentMethod
	PaymentProvider string

	CardNumber    string
	CVV           string
	AccountNumber string
	RoutingNumber string
	WalletID      string

	WebhookURL     string
	IdempotencyKey string
	Description    string
	Metadata       string
}

// validate enforces amount > 0 and method-specific field presence.
func validate(req InitiateRequest) error {
	if !money.IsPositive(req.Amount) {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if len(req.Currency) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3-letter ISO-4217 code"}
	}
	if !req.PaymentMethod.Valid() {
		return &ValidationError{Field: "payment_method", Message: "must be one of CARD, WALLET, BANK"}
	}
	switch req.PaymentMethod {
	case domain.MethodCard:
		if req.CardNumber == "" || req.CVV == "" {
			return &ValidationError{Field: "card", Message: "card payments require card_number and cvv"}
		}
	case domain.MethodBank:
		if req.AccountNumber == "" || req.RoutingNumber == "" {
			return &ValidationError{Field: "bank", Message: "bank payments require account_number and routing_number"}
		}
	case domain.MethodWallet:
		if req.WalletID == "" {
			return &ValidationError{Field: "wallet", Message: "wallet payments require wallet_id"}
		}
	}
	if len(req.IdempotencyKey) > 255 {
		return &ValidationError{Field: "idempotency_key", Message: "must not exceed 255 characters"}
	}
	return nil
}
