package fraud

import (
	"testing"

	"github.com/shopspring/decimal"

	"paymentcore/internal/domain"
	"paymentcore/internal/money"
)

func TestScoreIsPureAndDeterministic(t *testing.T) {
	s := NewScorer(true, DefaultThreshold)
	req := Request{
		Amount:        money.FromFloat(49.99),
		PaymentMethod: domain.MethodCard,
		CardNumber:    "4242424242424242",
		CVV:           "123",
	}
	first := s.Score(req)
	second := s.Score(req)
	if !first.Equal(second) {
		t.Fatalf("expected identical inputs to produce identical scores, got %s and %s", first, second)
	}
}

func TestScoreFraudBlockScenario(t *testing.T) {
	s := NewScorer(true, DefaultThreshold)
	req := Request{
		Amount:        money.FromFloat(75000),
		PaymentMethod: domain.MethodCard,
		CardNumber:    "1234",
		CVV:           "",
	}
	score := s.Score(req)
	if !s.ShouldBlock(score) {
		t.Fatalf("expected score %s to cross threshold %s", score, s.Threshold)
	}
}

func TestScoreDisabledReturnsZero(t *testing.T) {
	s := NewScorer(false, DefaultThreshold)
	req := Request{Amount: money.FromFloat(100000), PaymentMethod: domain.MethodCard, CardNumber: "1234"}
	score := s.Score(req)
	if !score.IsZero() {
		t.Fatalf("expected disabled scorer to return 0, got %s", score)
	}
}

func TestAmountBuckets(t *testing.T) {
	s := NewScorer(true, decimal.RequireFromString("1.00"))
	cases := []struct {
		amount string
		want   string
	}{
		// Every amount here is a whole number, so each also carries the
		// 0.05 exact-integer signal.
		{"50", "0.05"},
		{"500", "0.15"},
		{"5000", "0.25"},
		{"50000", "0.75"}, // 0.40 high bucket + 0.05 exact integer + 0.30 huge-amount signal
	}
	for _, tc := range cases {
		score := s.Score(Request{Amount: decimal.RequireFromString(tc.amount), PaymentMethod: ""})
		want := decimal.RequireFromString(tc.want)
		if !score.Equal(want) {
			t.Errorf("amount=%s: got score %s, want %s", tc.amount, score, want)
		}
	}
}

func TestShouldBlockThreshold(t *testing.T) {
	s := NewScorer(true, decimal.RequireFromString("0.50"))
	if s.ShouldBlock(decimal.RequireFromString("0.49")) {
		t.Fatal("0.49 should not cross a 0.50 threshold")
	}
	if !s.ShouldBlock(decimal.RequireFromString("0.50")) {
		t.Fatal("0.50 should cross a 0.50 threshold (>=)")
	}
}
