// Package handler implements the HTTP surface: JSON decoding and
// structural binding live here, domain admission rules live in
// internal/orchestrator.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paymentcore/internal/domain"
	"paymentcore/internal/money"
	"paymentcore/internal/orchestrator"
)

type PaymentHandler struct {
	svc *orchestrator.Service
}

func NewPaymentHandler(svc *orchestrator.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// initiateRequest is the wire-level request DTO: binding tags do
// structural validation, the handler does no domain logic beyond
// decoding and mapping into orchestrator.InitiateRequest.
type initiateRequest struct {
	UserID          string `json:"user_id" binding:"required"`
	MerchantID      string `json:"merchant_id" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	Currency        string `json:"currency" binding:"required,len=3"`
	PaymentMethod   string `json:"payment_method" binding:"required,oneof=CARD WALLET BANK"`
	PaymentProvider string `json:"payment_provider"`

	CardNumber    string `json:"card_number"`
	CVV           string `json:"cvv"`
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number"`
	WalletID      string `json:"wallet_id"`

	WebhookURL     string `json:"webhook_url"`
	IdempotencyKey string `json:"idempotency_key"`
	Description    string `json:"description"`
	Metadata       string `json:"metadata"`
}

// Initiate implements POST /api/v1/payments/initiate.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := h.svc.Initiate(c.Request.Context(), orchestrator.InitiateRequest{
		UserID:          req.UserID,
		MerchantID:      req.MerchantID,
		Amount:          amount,
		Currency:        req.Currency,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		PaymentProvider: req.PaymentProvider,
		CardNumber:      req.CardNumber,
		CVV:             req.CVV,
		AccountNumber:   req.AccountNumber,
		RoutingNumber:   req.RoutingNumber,
		WalletID:        req.WalletID,
		WebhookURL:      req.WebhookURL,
		IdempotencyKey:  req.IdempotencyKey,
		Description:     req.Description,
		Metadata:        req.Metadata,
	})
	if err != nil {
		var validationErr *orchestrator.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment initiation temporarily unavailable"})
		return
	}
	if tx.Status == domain.StatusFailed && tx.ErrorCode == domain.ErrCodeFraudBlocked {
		c.JSON(http.StatusUnprocessableEntity, tx)
		return
	}
	c.JSON(http.StatusAccepted, tx)
}

// Status implements GET /api/v1/payments/status/{id}.
func (h *PaymentHandler) Status(c *gin.Context) {
	id := c.Param("id")
	tx, err := h.svc.FetchStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup temporarily unavailable"})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, tx)
}
