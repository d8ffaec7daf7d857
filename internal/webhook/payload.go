// Package webhook retries outbound merchant notifications with
// exponential backoff until delivery succeeds or attempts are
// exhausted.
package webhook

import (
	"encoding/json"
	"time"

	"paymentcore/internal/models"
)

// Payload is the outbound notification schema: a terminal transaction
// snapshot the merchant can reconcile against its own order by
// reference_id.
type Payload struct {
	TransactionID string    `json:"transaction_id"`
	ReferenceID   string    `json:"reference_id"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// BuildPayload snapshots a terminal transaction for webhook delivery.
func BuildPayload(tx *models.Transaction) Payload {
	return Payload{
		TransactionID: tx.ID.String(),
		ReferenceID:   tx.ReferenceID,
		Status:        string(tx.Status),
		Amount:        tx.Amount.StringFixed(4),
		Currency:      tx.Currency,
		Timestamp:     time.Now().UTC(),
	}
}

// Marshal encodes a Payload the way it is stored in WebhookEvent.payload
// and later replayed verbatim on every retry attempt — the dispatcher
// never recomputes amounts or re-reads the transaction mid-retry.
func Marshal(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
