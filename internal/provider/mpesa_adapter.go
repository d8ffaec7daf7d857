package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"paymentcore/internal/models"
)

// MpesaAdapter drives M-Pesa STK push through TheLiberec's card API:
// it logs in for a bearer token, then submits the STK push request
// keyed off a Transaction.
type MpesaAdapter struct {
	BaseURL     string
	Email       string
	Password    string
	WebhookBase string
	client      *http.Client
	log         *zap.Logger
}

func NewMpesaAdapter(baseURL, email, password, webhookBase string, log *zap.Logger) *MpesaAdapter {
	if baseURL == "" {
		baseURL = "https://card-api.theliberec.com"
	}
	return &MpesaAdapter{
		BaseURL:     baseURL,
		Email:       email,
		Password:    password,
		WebhookBase: webhookBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
}

type liberecLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type liberecLoginResp struct {
	Token string `json:"token"`
}

// getToken logs in and returns a fresh token, one per charge call as
// the upstream API recommends.
func (p *MpesaAdapter) getToken(ctx context.Context) (string, error) {
	body, _ := json.Marshal(liberecLoginReq{Email: p.Email, Password: p.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/v1/merchants/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %d", resp.StatusCode)
	}
	var out liberecLoginResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

type mpesaSTKReq struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CallbackURL   string `json:"callback_url"`
	OrderID       string `json:"order_id"`
}

type mpesaSTKResp struct {
	OrderID             string `json:"order_id"`
	MerchantOrderID     string `json:"merchant_order_id"`
	CheckoutRequestID   string `json:"checkout_request_id"`
	Status              string `json:"status"`
	ResponseCode        string `json:"response_code"`
	ResponseDescription string `json:"response_description"`
}

// Charge implements provider.Adapter. tx.reference_id is sent as the
// upstream order_id so the rail's own idempotency keys off the same
// value the core already uses to deduplicate.
func (p *MpesaAdapter) Charge(ctx context.Context, tx *models.Transaction) (Result, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("mpesa login: %w", err)
	}
	callbackURL := ""
	if p.WebhookBase != "" {
		callbackURL = p.WebhookBase + "/api/v1/webhooks/mpesa"
	}
	payload := mpesaSTKReq{
		Amount:      tx.Amount.StringFixed(0),
		Currency:    tx.Currency,
		Description: tx.Description,
		CallbackURL: callbackURL,
		OrderID:     tx.ReferenceID,
	}
	body, _ := json.Marshal(payload)
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/v1/transactions/mpesa", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Authorization", "Bearer "+token)
	p.log.Debug("mpesa: STK request", zap.String("order_id", tx.ReferenceID), zap.String("callback", callbackURL))
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	p.log.Debug("mpesa: STK response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{Ok: false, FailureCode: "PROVIDER_REJECTED", FailureMessage: fmt.Sprintf("mpesa stk: http %d", resp.StatusCode)}, nil
	}
	var out mpesaSTKResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Result{}, fmt.Errorf("mpesa: decode response: %w", err)
	}
	if out.ResponseCode != "" && out.ResponseCode != "0" {
		return Result{Ok: false, FailureCode: "PROVIDER_DECLINED", FailureMessage: out.ResponseDescription}, nil
	}
	return Result{Ok: true, ProviderRef: out.CheckoutRequestID}, nil
}
