// Package pricing turns risk assessments and reputation data into
// insurance premium quotes, with coverage tiers plus volume and term
// discounts.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/risk"
)

var (
	// ErrUnknownTier is returned for coverage levels outside
	// basic/standard/premium.
	ErrUnknownTier = errors.New("unknown coverage tier")

	// ErrInvalidDistribution is returned when a fleet estimate's
	// coverage split does not sum to 1.0.
	ErrInvalidDistribution = errors.New("coverage distribution must sum to 1.0")

	// ErrInvalidDeviceCount is returned when a fleet estimate is
	// requested for zero or negative devices.
	ErrInvalidDeviceCount = errors.New("total device count must be positive")
)

// Quote is a priced insurance offer for one device, valid for 30 days.
type Quote struct {
	DeviceID           string
	AnnualPremiumUSD   float64
	MonthlyPremiumUSD  float64
	BasePremium        float64
	RiskAdjustment     float64
	ReputationDiscount float64
	CoverageLevel      string
	QuoteTimestamp     time.Time
	QuoteValidUntil    time.Time
	Terms              map[string]any
}

// MarshalJSON rounds currency to cents and adjustment factors to four
// decimal places.
func (q *Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DeviceID           string         `json:"device_id"`
		AnnualPremiumUSD   float64        `json:"annual_premium_usd"`
		MonthlyPremiumUSD  float64        `json:"monthly_premium_usd"`
		BasePremium        float64        `json:"base_premium"`
		RiskAdjustment     float64        `json:"risk_adjustment"`
		ReputationDiscount float64        `json:"reputation_discount"`
		CoverageLevel      string         `json:"coverage_level"`
		QuoteTimestamp     string         `json:"quote_timestamp"`
		QuoteValidUntil    string         `json:"quote_valid_until"`
		Terms              map[string]any `json:"terms"`
	}{
		DeviceID:           q.DeviceID,
		AnnualPremiumUSD:   round2(q.AnnualPremiumUSD),
		MonthlyPremiumUSD:  round2(q.MonthlyPremiumUSD),
		BasePremium:        round2(q.BasePremium),
		RiskAdjustment:     round4(q.RiskAdjustment),
		ReputationDiscount: round4(q.ReputationDiscount),
		CoverageLevel:      q.CoverageLevel,
		QuoteTimestamp:     q.QuoteTimestamp.Format(time.RFC3339),
		QuoteValidUntil:    q.QuoteValidUntil.Format(time.RFC3339),
		Terms:              q.Terms,
	})
}

// CoverageBreakdown is one tier's share of a fleet cost estimate.
type CoverageBreakdown struct {
	CoverageTier     string  `json:"coverage_tier"`
	DeviceCount      int     `json:"device_count"`
	PremiumPerDevice float64 `json:"premium_per_device"`
	TotalPremium     float64 `json:"total_premium"`
}

// CostEstimate projects annual insurance cost for a device fleet.
type CostEstimate struct {
	TotalDevices         int                 `json:"total_devices"`
	BreakdownByCoverage  []CoverageBreakdown `json:"breakdown_by_coverage"`
	Subtotal             float64             `json:"subtotal"`
	VolumeDiscountRate   float64             `json:"volume_discount_rate"`
	VolumeDiscountAmount float64             `json:"volume_discount_amount"`
	TotalAnnualCost      float64             `json:"total_annual_cost"`
	CostPerDeviceMonthly float64             `json:"cost_per_device_monthly"`
}

// Engine generates premium quotes from risk assessments. It carries its
// own tier table; per-device floor/ceiling pricing lives in Model.
type Engine struct {
	baseAnnualPremium float64
	coverageTiers     map[string]struct {
		multiplier float64
		maxClaim   int
	}
	logger *zap.Logger

	now func() time.Time
}

// NewEngine creates an Engine with the standard tier table.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		baseAnnualPremium: 120.0,
		coverageTiers: map[string]struct {
			multiplier float64
			maxClaim   int
		}{
			"basic":    {1.0, 5000},
			"standard": {1.5, 25000},
			"premium":  {2.5, 100000},
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GenerateQuote prices coverage for one device. A nil reputationScore
// is treated as the neutral 0.5. Quotes expire 30 days after issue.
// Non-annual durations prorate the quoted total; the monthly figure
// always reflects the full annual rate.
func (e *Engine) GenerateQuote(deviceID string, assessment *risk.Assessment, reputationScore *float64, coverageLevel string, policyDurationMonths int) (*Quote, error) {
	tier, ok := e.coverageTiers[coverageLevel]
	if !ok {
		return nil, fmt.Errorf("coverage level %q: %w", coverageLevel, ErrUnknownTier)
	}

	timestamp := e.now()
	validUntil := timestamp.Add(30 * 24 * time.Hour)

	riskScore := assessment.OverallRiskScore
	confidence := assessment.ConfidenceLevel
	riskMultiplier := riskMultiplier(riskScore, confidence)

	repScore := 0.5
	if reputationScore != nil {
		repScore = *reputationScore
	}
	reputationDiscount := reputationDiscount(repScore)

	annualPremium := e.baseAnnualPremium * riskMultiplier * tier.multiplier * (1.0 - reputationDiscount)
	monthlyPremium := annualPremium / 12.0

	if policyDurationMonths != 12 {
		annualPremium = (annualPremium / 12.0) * float64(policyDurationMonths)
	}

	quote := &Quote{
		DeviceID:           deviceID,
		AnnualPremiumUSD:   annualPremium,
		MonthlyPremiumUSD:  monthlyPremium,
		BasePremium:        e.baseAnnualPremium,
		RiskAdjustment:     riskMultiplier,
		ReputationDiscount: reputationDiscount,
		CoverageLevel:      coverageLevel,
		QuoteTimestamp:     timestamp,
		QuoteValidUntil:    validUntil,
		Terms: map[string]any{
			"policy_duration_months": policyDurationMonths,
			"max_annual_claim":       tier.maxClaim,
			"risk_score":             round4(riskScore),
			"confidence_level":       round4(confidence),
			"reputation_score":       round4(repScore),
			"threat_indicators":      assessment.ThreatIndicators,
		},
	}

	e.logger.Info("premium quote generated",
		zap.String("device_id", deviceID),
		zap.Float64("annual_premium_usd", round2(annualPremium)),
		zap.String("coverage_level", coverageLevel),
	)
	return quote, nil
}

// ApplyVolumeDiscount reprices a quote for fleet size. The discount
// rate is folded into the reputation discount field so the quote's
// combined discount stays visible in one place; the raw rate is also
// recorded under terms["volume_discount"].
func (e *Engine) ApplyVolumeDiscount(base *Quote, deviceCount int) *Quote {
	rate := volumeDiscountRate(deviceCount)

	adjustedAnnual := base.AnnualPremiumUSD * (1.0 - rate)

	terms := make(map[string]any, len(base.Terms)+1)
	for k, v := range base.Terms {
		terms[k] = v
	}
	terms["volume_discount"] = rate

	return &Quote{
		DeviceID:           base.DeviceID,
		AnnualPremiumUSD:   adjustedAnnual,
		MonthlyPremiumUSD:  adjustedAnnual / 12.0,
		BasePremium:        base.BasePremium,
		RiskAdjustment:     base.RiskAdjustment,
		ReputationDiscount: base.ReputationDiscount + rate,
		CoverageLevel:      base.CoverageLevel,
		QuoteTimestamp:     base.QuoteTimestamp,
		QuoteValidUntil:    base.QuoteValidUntil,
		Terms:              terms,
	}
}

// EstimateAnnualCost projects total fleet cost from averaged inputs.
// coverageDistribution maps tier name to its fraction of the fleet and
// must sum to exactly 1.0. Estimates assume 0.8 assessment confidence.
func (e *Engine) EstimateAnnualCost(totalDevices int, averageRiskScore, averageReputation float64, coverageDistribution map[string]float64) (*CostEstimate, error) {
	if totalDevices <= 0 {
		return nil, ErrInvalidDeviceCount
	}
	sum := 0.0
	for _, fraction := range coverageDistribution {
		sum += fraction
	}
	if sum != 1.0 {
		return nil, ErrInvalidDistribution
	}

	var breakdown []CoverageBreakdown
	subtotal := 0.0
	for tierName, fraction := range coverageDistribution {
		tier, ok := e.coverageTiers[tierName]
		if !ok {
			return nil, fmt.Errorf("coverage level %q: %w", tierName, ErrUnknownTier)
		}

		deviceCount := int(float64(totalDevices) * fraction)
		riskMult := riskMultiplier(averageRiskScore, 0.8)
		repDiscount := reputationDiscount(averageReputation)
		perDevice := e.baseAnnualPremium * riskMult * tier.multiplier * (1.0 - repDiscount)

		breakdown = append(breakdown, CoverageBreakdown{
			CoverageTier:     tierName,
			DeviceCount:      deviceCount,
			PremiumPerDevice: perDevice,
			TotalPremium:     perDevice * float64(deviceCount),
		})
		subtotal += perDevice * float64(deviceCount)
	}

	discountRate := volumeDiscountRate(totalDevices)
	discountedTotal := subtotal * (1.0 - discountRate)

	return &CostEstimate{
		TotalDevices:         totalDevices,
		BreakdownByCoverage:  breakdown,
		Subtotal:             subtotal,
		VolumeDiscountRate:   discountRate,
		VolumeDiscountAmount: subtotal - discountedTotal,
		TotalAnnualCost:      discountedTotal,
		CostPerDeviceMonthly: discountedTotal / 12.0 / float64(totalDevices),
	}, nil
}

// riskMultiplier maps a risk score to a premium multiplier on a
// piecewise-linear curve, scaled by confidence and capped at 4.0.
// Bands: [0,0.3) low 0.5x-0.8x, [0.3,0.5) medium 0.8x-1.2x, [0.5,0.7)
// high 1.2x-2.0x, [0.7,1.0] critical 2.0x-4.0x.
func riskMultiplier(riskScore, confidence float64) float64 {
	var base float64
	switch {
	case riskScore < 0.3:
		base = 0.5 + (riskScore/0.3)*0.3
	case riskScore < 0.5:
		base = 0.8 + ((riskScore-0.3)/0.2)*0.4
	case riskScore < 0.7:
		base = 1.2 + ((riskScore-0.5)/0.2)*0.8
	default:
		base = 2.0 + ((riskScore-0.7)/0.3)*2.0
	}

	adjusted := base * (0.5 + confidence*0.5)
	return math.Min(adjusted, 4.0)
}

// reputationDiscount maps reputation to a discount fraction. Poor
// reputation yields a negative discount, raising the premium by 15%;
// the best devices earn up to 30% off.
func reputationDiscount(reputationScore float64) float64 {
	switch {
	case reputationScore < 0.3:
		return -0.15
	case reputationScore < 0.5:
		return (reputationScore - 0.3) / 0.2 * -0.10
	case reputationScore < 0.7:
		return ((reputationScore - 0.5) / 0.2) * 0.05
	default:
		return 0.10 + ((reputationScore-0.7)/0.3)*0.20
	}
}

func volumeDiscountRate(deviceCount int) float64 {
	switch {
	case deviceCount < 10:
		return 0.0
	case deviceCount < 50:
		return 0.05
	case deviceCount < 100:
		return 0.10
	case deviceCount < 500:
		return 0.15
	default:
		return 0.20
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
