// Package fraud implements a pure, deterministic risk scorer. It has
// no side effects and makes no I/O calls; the orchestrator is
// responsible for persisting the result and writing the FRAUD_CHECK
// audit entry.
package fraud

import (
	"regexp"

	"github.com/shopspring/decimal"

	"paymentcore/internal/domain"
	"paymentcore/internal/money"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[0-9]{13,19}$`)
	cvvPattern        = regexp.MustCompile(`^[0-9]{3,4}$`)

	// Known test PANs (Stripe's published test card numbers), treated
	// as sandbox-only traffic rather than a hard block.
	testCardNumbers = map[string]bool{
		"4242424242424242": true,
		"4000056655665556": true,
		"5555555555554444": true,
		"2223003122003222": true,
		"4000002500003155": true,
	}
)

var (
	threshAmtHigh   = decimal.RequireFromString("10000")
	threshAmtMed    = decimal.RequireFromString("1000")
	threshAmtLow    = decimal.RequireFromString("100")
	threshTiny      = decimal.RequireFromString("1")
	threshHuge      = decimal.RequireFromString("50000")
	scoreAmtHigh    = decimal.RequireFromString("0.40")
	scoreAmtMed     = decimal.RequireFromString("0.20")
	scoreAmtLow     = decimal.RequireFromString("0.10")
	scoreCard       = decimal.RequireFromString("0.10")
	scoreWallet     = decimal.RequireFromString("0.05")
	scoreBank       = decimal.RequireFromString("0.15")
	scoreBadPAN     = decimal.RequireFromString("0.30")
	scoreBadCVV     = decimal.RequireFromString("0.20")
	scoreTestPAN    = decimal.RequireFromString("0.10")
	scoreExactInt   = decimal.RequireFromString("0.05")
	scoreTinyAmount = decimal.RequireFromString("0.10")
	scoreHugeAmount = decimal.RequireFromString("0.30")
)

// DefaultThreshold is ShouldBlock's default cutoff, overridden by the
// fraud.score_threshold config key.
var DefaultThreshold = decimal.RequireFromString("0.70")

// Request is the subset of a payment initiation the scorer needs. It
// intentionally does not depend on the HTTP DTO or the gorm model so the
// scorer stays a pure function over plain values.
type Request struct {
	Amount        money.Amount
	PaymentMethod domain.PaymentMethod
	CardNumber    string
	CVV           string
}

// Scorer evaluates fraud risk. Enabled=false makes Score always return
// zero, matching the fraud.enabled config key's "disabled mode" clause.
type Scorer struct {
	Enabled   bool
	Threshold decimal.Decimal
}

func NewScorer(enabled bool, threshold decimal.Decimal) *Scorer {
	return &Scorer{Enabled: enabled, Threshold: threshold}
}

// Score sums every weighted risk signal and clamps to [0,1]. Identical
// input always produces identical output.
func (s *Scorer) Score(req Request) money.Amount {
	if !s.Enabled {
		return money.Zero()
	}
	score := decimal.Zero
	score = score.Add(amountRisk(req.Amount))
	score = score.Add(methodRisk(req.PaymentMethod))
	if req.PaymentMethod == domain.MethodCard {
		score = score.Add(cardRisk(req))
	}
	score = score.Add(suspiciousPatternRisk(req.Amount))
	return money.Clamp01(score)
}

// ShouldBlock reports whether score crosses the configured threshold.
func (s *Scorer) ShouldBlock(score money.Amount) bool {
	return score.GreaterThanOrEqual(s.Threshold)
}

func amountRisk(amount money.Amount) decimal.Decimal {
	switch {
	case amount.GreaterThanOrEqual(threshAmtHigh):
		return scoreAmtHigh
	case amount.GreaterThanOrEqual(threshAmtMed):
		return scoreAmtMed
	case amount.GreaterThanOrEqual(threshAmtLow):
		return scoreAmtLow
	default:
		return decimal.Zero
	}
}

func methodRisk(method domain.PaymentMethod) decimal.Decimal {
	switch method {
	case domain.MethodCard:
		return scoreCard
	case domain.MethodWallet:
		return scoreWallet
	case domain.MethodBank:
		return scoreBank
	default:
		return decimal.Zero
	}
}

func cardRisk(req Request) decimal.Decimal {
	score := decimal.Zero
	if req.CardNumber != "" && !cardNumberPattern.MatchString(req.CardNumber) {
		score = score.Add(scoreBadPAN)
	}
	if req.CVV != "" && !cvvPattern.MatchString(req.CVV) {
		score = score.Add(scoreBadCVV)
	}
	if testCardNumbers[req.CardNumber] {
		score = score.Add(scoreTestPAN)
	}
	return score
}

func suspiciousPatternRisk(amount money.Amount) decimal.Decimal {
	score := decimal.Zero
	if amount.Mod(decimal.NewFromInt(1)).IsZero() {
		score = score.Add(scoreExactInt)
	}
	if amount.LessThanOrEqual(threshTiny) {
		score = score.Add(scoreTinyAmount)
	}
	if amount.GreaterThanOrEqual(threshHuge) {
		score = score.Add(scoreHugeAmount)
	}
	return score
}
