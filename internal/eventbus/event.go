package eventbus

import (
	"time"

	"paymentcore/internal/domain"
	"paymentcore/internal/money"
)

// PaymentEvent is the wire schema published to both payment-events and
// payment-results: a transaction snapshot plus the
// event_type/event_timestamp that triggered publication.
type PaymentEvent struct {
	TransactionID   string                   `json:"transaction_id"`
	ReferenceID     string                   `json:"reference_id"`
	UserID          string                   `json:"user_id"`
	MerchantID      string                   `json:"merchant_id"`
	Amount          money.Amount             `json:"amount"`
	Currency        string                   `json:"currency"`
	PaymentMethod   domain.PaymentMethod     `json:"payment_method"`
	PaymentProvider string                   `json:"payment_provider"`
	Status          domain.TransactionStatus `json:"status"`
	FraudScore      money.Amount             `json:"fraud_score"`
	ErrorCode       string                   `json:"error_code,omitempty"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
	WebhookURL      string                   `json:"webhook_url,omitempty"`
	EventType       domain.EventType         `json:"event_type"`
	EventTimestamp  time.Time                `json:"event_timestamp"`
}

// Handler processes one event. Returning an error leaves the message
// unacked, triggering the bus's at-least-once redelivery.
type Handler func(event PaymentEvent) error
