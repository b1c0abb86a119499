package pricing

import (
	"fmt"
	"sort"
)

// TierConfig describes one coverage tier's pricing and coverage terms.
type TierConfig struct {
	TierName       string   `json:"tier_name"`
	BaseMultiplier float64  `json:"base_multiplier"`
	MaxAnnualClaim int      `json:"max_annual_claim"`
	Deductible     int      `json:"deductible"`
	CoverageItems  []string `json:"coverage_items"`
}

// TierDetails is TierConfig plus derived display fields.
type TierDetails struct {
	TierConfig
	ItemCount int `json:"item_count"`
}

// volumeBracket maps a minimum device count to a discount rate.
type volumeBracket struct {
	threshold int
	rate      float64
}

// Model converts risk and reputation scores into premium amounts. The
// premium always lands inside [MinPremium, MaxPremium] before
// discounts.
type Model struct {
	BasePremium float64
	MinPremium  float64
	MaxPremium  float64

	tiers    map[string]TierConfig
	brackets []volumeBracket
}

// NewModel creates a Model with the standard three coverage tiers.
func NewModel() *Model {
	return &Model{
		BasePremium: 120.0,
		MinPremium:  30.0,
		MaxPremium:  500.0,
		tiers: map[string]TierConfig{
			"basic": {
				TierName:       "basic",
				BaseMultiplier: 1.0,
				MaxAnnualClaim: 5000,
				Deductible:     500,
				CoverageItems: []string{
					"malware_removal",
					"data_recovery",
					"incident_support",
				},
			},
			"standard": {
				TierName:       "standard",
				BaseMultiplier: 1.5,
				MaxAnnualClaim: 25000,
				Deductible:     250,
				CoverageItems: []string{
					"malware_removal",
					"data_recovery",
					"incident_support",
					"forensic_analysis",
					"legal_consultation",
				},
			},
			"premium": {
				TierName:       "premium",
				BaseMultiplier: 2.5,
				MaxAnnualClaim: 100000,
				Deductible:     0,
				CoverageItems: []string{
					"malware_removal",
					"data_recovery",
					"incident_support",
					"forensic_analysis",
					"legal_consultation",
					"24_7_response",
					"credential_monitoring",
				},
			},
		},
		brackets: []volumeBracket{
			{10, 0.05},
			{50, 0.10},
			{100, 0.15},
			{500, 0.20},
		},
	}
}

// CalculateBasePremium prices a device before volume and term
// discounts. A nil reputationScore skips the reputation adjustment
// entirely rather than assuming a neutral score.
func (m *Model) CalculateBasePremium(riskScore, confidence float64, coverageTier string, reputationScore *float64) (float64, error) {
	tier, ok := m.tiers[coverageTier]
	if !ok {
		return 0, fmt.Errorf("coverage tier %q: %w", coverageTier, ErrUnknownTier)
	}

	premium := m.BasePremium * m.riskToMultiplier(riskScore, confidence) * tier.BaseMultiplier

	if reputationScore != nil {
		premium *= reputationToAdjustment(*reputationScore)
	}

	if premium < m.MinPremium {
		premium = m.MinPremium
	}
	if premium > m.MaxPremium {
		premium = m.MaxPremium
	}
	return premium, nil
}

// ApplyVolumeDiscount discounts a premium by fleet size and returns the
// discounted amount together with the rate used.
func (m *Model) ApplyVolumeDiscount(premium float64, deviceCount int) (float64, float64) {
	rate := 0.0
	for i := len(m.brackets) - 1; i >= 0; i-- {
		if deviceCount >= m.brackets[i].threshold {
			rate = m.brackets[i].rate
			break
		}
	}
	return premium * (1.0 - rate), rate
}

// PolicyCost breaks down the cost of a multi-month policy.
type PolicyCost struct {
	BaseAnnualCost       float64            `json:"base_annual_cost"`
	PolicyMonths         int                `json:"policy_months"`
	Adjustments          map[string]float64 `json:"adjustments"`
	TotalAdjustmentsRate float64            `json:"total_adjustments_rate"`
	FinalAnnualCost      float64            `json:"final_annual_cost"`
	MonthlyEffectiveRate float64            `json:"monthly_effective_rate"`
}

// CalculateAnnualPolicyCost totals a policy over its term. 24-month
// terms earn a 5% discount and 36-month terms 10%; a bulkCount adds the
// fleet discount unless includesDiscount says it was already applied.
// bulkCount <= 0 means no fleet.
func (m *Model) CalculateAnnualPolicyCost(monthlyPremium float64, policyMonths int, includesDiscount bool, bulkCount int) *PolicyCost {
	baseCost := monthlyPremium * float64(policyMonths)

	adjustments := map[string]float64{}
	switch policyMonths {
	case 24:
		adjustments["term_discount"] = 0.05
	case 36:
		adjustments["term_discount"] = 0.10
	default:
		adjustments["term_discount"] = 0.0
	}

	if bulkCount > 0 && !includesDiscount {
		_, bulkRate := m.ApplyVolumeDiscount(monthlyPremium, bulkCount)
		adjustments["bulk_discount"] = bulkRate
	}

	total := 0.0
	for _, rate := range adjustments {
		total += rate
	}

	finalCost := baseCost * (1.0 - total)
	return &PolicyCost{
		BaseAnnualCost:       baseCost,
		PolicyMonths:         policyMonths,
		Adjustments:          adjustments,
		TotalAdjustmentsRate: total,
		FinalAnnualCost:      finalCost,
		MonthlyEffectiveRate: finalCost / float64(policyMonths),
	}
}

// TierDetails returns one tier's configuration, or ErrUnknownTier.
func (m *Model) TierDetails(tierName string) (*TierDetails, error) {
	tier, ok := m.tiers[tierName]
	if !ok {
		return nil, fmt.Errorf("coverage tier %q: %w", tierName, ErrUnknownTier)
	}
	return &TierDetails{TierConfig: tier, ItemCount: len(tier.CoverageItems)}, nil
}

// AllTiers returns every tier's details keyed by tier name.
func (m *Model) AllTiers() map[string]*TierDetails {
	out := make(map[string]*TierDetails, len(m.tiers))
	for name := range m.tiers {
		details, _ := m.TierDetails(name)
		out[name] = details
	}
	return out
}

// TierNames returns the coverage tier names in sorted order.
func (m *Model) TierNames() []string {
	names := make([]string, 0, len(m.tiers))
	for name := range m.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// riskToMultiplier is the Model's step-function risk curve, scaled by
// assessment confidence.
func (m *Model) riskToMultiplier(riskScore, confidence float64) float64 {
	var base float64
	switch {
	case riskScore < 0.2:
		base = 0.60
	case riskScore < 0.4:
		base = 0.80
	case riskScore < 0.6:
		base = 1.20
	case riskScore < 0.8:
		base = 1.80
	default:
		base = 2.50
	}
	return base * (0.7 + confidence*0.3)
}

// reputationToAdjustment maps reputation to a premium factor between
// 0.80 (best) and 1.25 (worst).
func reputationToAdjustment(reputationScore float64) float64 {
	switch {
	case reputationScore < 0.3:
		return 1.25
	case reputationScore < 0.5:
		return 1.10
	case reputationScore < 0.7:
		return 1.0
	case reputationScore < 0.85:
		return 0.90
	default:
		return 0.80
	}
}
