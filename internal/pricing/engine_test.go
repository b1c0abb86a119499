package pricing

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/risk"
)

func testAssessment(score, confidence float64) *risk.Assessment {
	return &risk.Assessment{
		DeviceID:          "dev-1",
		Timestamp:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		OverallRiskScore:  score,
		ConfidenceLevel:   confidence,
		ThreatIndicators:  []string{},
		AssessmentVersion: risk.AssessmentVersion,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestGenerateQuote_invalidTier(t *testing.T) {
	e := NewEngine(zap.NewNop())

	_, err := e.GenerateQuote("dev-1", testAssessment(0.5, 0.8), nil, "invalid_tier", 12)
	if !errors.Is(err, ErrUnknownTier) {
		t.Errorf("expected ErrUnknownTier, got %v", err)
	}
}

func TestGenerateQuote_higherRiskCostsMore(t *testing.T) {
	e := NewEngine(zap.NewNop())

	low, err := e.GenerateQuote("dev-1", testAssessment(0.2, 0.8), nil, "standard", 12)
	if err != nil {
		t.Fatal(err)
	}
	high, err := e.GenerateQuote("dev-1", testAssessment(0.8, 0.8), nil, "standard", 12)
	if err != nil {
		t.Fatal(err)
	}

	if high.AnnualPremiumUSD <= low.AnnualPremiumUSD {
		t.Errorf("risk 0.8 premium %v should exceed risk 0.2 premium %v",
			high.AnnualPremiumUSD, low.AnnualPremiumUSD)
	}
}

func TestGenerateQuote_betterReputationCostsLess(t *testing.T) {
	e := NewEngine(zap.NewNop())
	assessment := testAssessment(0.5, 0.8)

	bad, err := e.GenerateQuote("dev-1", assessment, floatPtr(0.20), "standard", 12)
	if err != nil {
		t.Fatal(err)
	}
	good, err := e.GenerateQuote("dev-1", assessment, floatPtr(0.90), "standard", 12)
	if err != nil {
		t.Fatal(err)
	}

	if good.AnnualPremiumUSD >= bad.AnnualPremiumUSD {
		t.Errorf("reputation 0.90 premium %v should be below reputation 0.20 premium %v",
			good.AnnualPremiumUSD, bad.AnnualPremiumUSD)
	}
}

func TestGenerateQuote_defaultsAndTerms(t *testing.T) {
	e := NewEngine(zap.NewNop())

	quote, err := e.GenerateQuote("dev-1", testAssessment(0.5, 0.8), nil, "standard", 12)
	if err != nil {
		t.Fatal(err)
	}

	if quote.Terms["reputation_score"] != 0.5 {
		t.Errorf("nil reputation should default to 0.5, got %v", quote.Terms["reputation_score"])
	}
	if quote.Terms["max_annual_claim"] != 25000 {
		t.Errorf("standard tier max claim: got %v, want 25000", quote.Terms["max_annual_claim"])
	}
	if got := quote.QuoteValidUntil.Sub(quote.QuoteTimestamp); got != 30*24*time.Hour {
		t.Errorf("quote validity: got %v, want 30 days", got)
	}
	if math.Abs(quote.MonthlyPremiumUSD-quote.AnnualPremiumUSD/12.0) > 1e-9 {
		t.Errorf("monthly %v should be annual/12 (%v)", quote.MonthlyPremiumUSD, quote.AnnualPremiumUSD/12.0)
	}
}

func TestGenerateQuote_shortDurationProrates(t *testing.T) {
	e := NewEngine(zap.NewNop())
	assessment := testAssessment(0.5, 0.8)

	annual, err := e.GenerateQuote("dev-1", assessment, nil, "basic", 12)
	if err != nil {
		t.Fatal(err)
	}
	short, err := e.GenerateQuote("dev-1", assessment, nil, "basic", 6)
	if err != nil {
		t.Fatal(err)
	}

	want := annual.AnnualPremiumUSD / 2.0
	if math.Abs(short.AnnualPremiumUSD-want) > 1e-9 {
		t.Errorf("6-month premium: got %v, want %v", short.AnnualPremiumUSD, want)
	}
}

func TestApplyVolumeDiscount_quote(t *testing.T) {
	e := NewEngine(zap.NewNop())

	base, err := e.GenerateQuote("dev-1", testAssessment(0.5, 0.8), nil, "standard", 12)
	if err != nil {
		t.Fatal(err)
	}

	discounted := e.ApplyVolumeDiscount(base, 50)
	if math.Abs(discounted.AnnualPremiumUSD-base.AnnualPremiumUSD*0.90) > 1e-9 {
		t.Errorf("50-device premium: got %v, want %v", discounted.AnnualPremiumUSD, base.AnnualPremiumUSD*0.90)
	}
	if discounted.Terms["volume_discount"] != 0.10 {
		t.Errorf("volume discount term: got %v, want 0.10", discounted.Terms["volume_discount"])
	}
	if math.Abs(discounted.ReputationDiscount-(base.ReputationDiscount+0.10)) > 1e-9 {
		t.Errorf("combined discount: got %v, want %v", discounted.ReputationDiscount, base.ReputationDiscount+0.10)
	}
	if _, ok := base.Terms["volume_discount"]; ok {
		t.Error("original quote terms must not be mutated")
	}
}

func TestEstimateAnnualCost_distributionValidation(t *testing.T) {
	e := NewEngine(zap.NewNop())

	_, err := e.EstimateAnnualCost(100, 0.5, 0.5, map[string]float64{
		"basic":    0.5,
		"standard": 0.49,
	})
	if !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestEstimateAnnualCost_rejectsNonPositiveDeviceCount(t *testing.T) {
	e := NewEngine(zap.NewNop())

	dist := map[string]float64{"standard": 1.0}
	for _, devices := range []int{0, -5} {
		if _, err := e.EstimateAnnualCost(devices, 0.5, 0.5, dist); !errors.Is(err, ErrInvalidDeviceCount) {
			t.Errorf("devices=%d: expected ErrInvalidDeviceCount, got %v", devices, err)
		}
	}
}

func TestEstimateAnnualCost_volumeDiscountApplied(t *testing.T) {
	e := NewEngine(zap.NewNop())

	estimate, err := e.EstimateAnnualCost(100, 0.5, 0.5, map[string]float64{
		"basic":    0.25,
		"standard": 0.5,
		"premium":  0.25,
	})
	if err != nil {
		t.Fatal(err)
	}

	if estimate.VolumeDiscountRate != 0.15 {
		t.Errorf("volume discount rate: got %v, want 0.15", estimate.VolumeDiscountRate)
	}
	if estimate.TotalAnnualCost >= estimate.Subtotal {
		t.Errorf("discounted total %v should be below subtotal %v", estimate.TotalAnnualCost, estimate.Subtotal)
	}
	if len(estimate.BreakdownByCoverage) != 3 {
		t.Errorf("breakdown entries: got %d, want 3", len(estimate.BreakdownByCoverage))
	}
}

func TestRiskMultiplier_bandsAndCap(t *testing.T) {
	cases := []struct {
		risk, confidence, want float64
	}{
		{0.0, 1.0, 0.5},
		{0.3, 1.0, 0.8},
		{0.5, 1.0, 1.2},
		{0.7, 1.0, 2.0},
		{1.0, 1.0, 4.0},
		{1.0, 0.0, 2.0}, // critical band at zero confidence halves
		{0.5, 0.8, 1.2 * 0.9},
	}
	for _, tc := range cases {
		if got := riskMultiplier(tc.risk, tc.confidence); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("riskMultiplier(%v, %v) = %v, want %v", tc.risk, tc.confidence, got, tc.want)
		}
	}
}

func TestReputationDiscount_curve(t *testing.T) {
	cases := []struct {
		score, want float64
	}{
		{0.1, -0.15},
		{0.3, 0.0},
		{0.5, 0.0},
		{0.6, 0.025},
		{0.7, 0.10},
		{1.0, 0.30},
	}
	for _, tc := range cases {
		if got := reputationDiscount(tc.score); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("reputationDiscount(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestQuoteMarshalJSON_rounding(t *testing.T) {
	quote := &Quote{
		DeviceID:           "dev-1",
		AnnualPremiumUSD:   123.456789,
		MonthlyPremiumUSD:  10.288066,
		BasePremium:        120.0,
		RiskAdjustment:     1.234567,
		ReputationDiscount: 0.0525123,
		CoverageLevel:      "standard",
		QuoteTimestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		QuoteValidUntil:    time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC),
		Terms:              map[string]any{"policy_duration_months": 12},
	}

	raw, err := json.Marshal(quote)
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		DeviceID           string  `json:"device_id"`
		AnnualPremiumUSD   float64 `json:"annual_premium_usd"`
		RiskAdjustment     float64 `json:"risk_adjustment"`
		ReputationDiscount float64 `json:"reputation_discount"`
		QuoteTimestamp     string  `json:"quote_timestamp"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("device id: got %q", got.DeviceID)
	}
	if got.AnnualPremiumUSD != 123.46 {
		t.Errorf("annual premium rounding: got %v, want 123.46", got.AnnualPremiumUSD)
	}
	if got.RiskAdjustment != 1.2346 {
		t.Errorf("risk adjustment rounding: got %v, want 1.2346", got.RiskAdjustment)
	}
	if got.ReputationDiscount != 0.0525 {
		t.Errorf("reputation discount rounding: got %v, want 0.0525", got.ReputationDiscount)
	}
	if got.QuoteTimestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp format: got %q", got.QuoteTimestamp)
	}
}
