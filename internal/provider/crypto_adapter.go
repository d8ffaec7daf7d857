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

// CryptoAdapter settles WALLET-method transactions through the
// Swapuzi merchant API: it logs in for a bearer token, then initiates
// a deposit and returns a Result carrying the redirect URL the caller
// hands back to the payer.
type CryptoAdapter struct {
	BaseURL  string
	Email    string
	Password string
	client   *http.Client
	log      *zap.Logger
}

func NewCryptoAdapter(baseURL, email, password string, log *zap.Logger) *CryptoAdapter {
	if baseURL == "" {
		baseURL = "https://api.swapuzi.com"
	}
	return &CryptoAdapter{
		BaseURL:  baseURL,
		Email:    email,
		Password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

type swapuziLoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type swapuziLoginResp struct {
	Token string `json:"token"`
}

func (p *CryptoAdapter) getToken(ctx context.Context) (string, error) {
	body, _ := json.Marshal(swapuziLoginReq{Email: p.Email, Password: p.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/merchants/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wallet login failed: %d %s", resp.StatusCode, string(respBody))
	}
	var out swapuziLoginResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("wallet: login returned empty token")
	}
	return out.Token, nil
}

type walletDepositReq struct {
	ExpectedAmount float64 `json:"expected_amount"`
	WebhookURL     string  `json:"webhook_url"`
	Notes          string  `json:"notes"`
	DepositID      string  `json:"deposit_id"`
}

type walletDepositResp struct {
	MerchantDepositID string  `json:"merchant_deposit_id"`
	Status            string  `json:"status"`
	Message           string  `json:"message"`
	PageURL           string  `json:"page_url"`
	ExpectedAmount    float64 `json:"expected_amount"`
}

// Charge implements provider.Adapter for the WALLET rail.
// tx.reference_id is sent as deposit_id so Swapuzi's own dedup keys
// off the same value the core uses.
func (p *CryptoAdapter) Charge(ctx context.Context, tx *models.Transaction) (Result, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("wallet login: %w", err)
	}
	amount, _ := tx.Amount.Float64()
	payload := walletDepositReq{
		ExpectedAmount: amount,
		WebhookURL:     tx.WebhookURL,
		Notes:          tx.Description,
		DepositID:      tx.ReferenceID,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/merchants/solana/deposit/initiate", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	p.log.Debug("wallet: deposit request", zap.String("deposit_id", tx.ReferenceID), zap.Float64("amount", amount))
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	p.log.Debug("wallet: deposit response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{Ok: false, FailureCode: "PROVIDER_REJECTED", FailureMessage: fmt.Sprintf("wallet deposit: http %d", resp.StatusCode)}, nil
	}
	var out walletDepositResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Result{}, fmt.Errorf("wallet: decode response: %w", err)
	}
	return Result{
		Ok:          true,
		ProviderRef: out.MerchantDepositID,
		RedirectURL: out.PageURL,
	}, nil
}
