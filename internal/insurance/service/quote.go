package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/insurance/model"
	"github.com/securepremium/securepremium/internal/insurance/repository"
	"github.com/securepremium/securepremium/internal/pricing"
	"github.com/securepremium/securepremium/internal/risk"
)

// ErrNoAssessment is returned when a quote is requested for a device
// that has never been assessed.
var ErrNoAssessment = errors.New("device has no risk assessment")

// GenerateQuote prices coverage for a device based on its latest stored
// assessment and its network reputation. When the quote is cacheable
// (single device) and a cached copy exists, the cached JSON is returned
// instead of a freshly priced quote.
func (s *Service) GenerateQuote(ctx context.Context, req *model.QuoteRequest) (*pricing.Quote, json.RawMessage, error) {
	if _, err := s.devices.GetByDeviceID(ctx, req.DeviceID); err != nil {
		return nil, nil, err
	}

	coverage := req.CoverageLevel
	if coverage == "" {
		coverage = "standard"
	}
	duration := req.PolicyDurationMonths
	if duration <= 0 {
		duration = 12
	}

	cacheable := s.cache != nil && req.DeviceCount <= 1
	if cacheable {
		if raw, err := s.cache.Get(ctx, req.DeviceID, coverage); err == nil {
			s.logger.Debug("quote cache hit", zap.String("device_id", req.DeviceID))
			return nil, raw, nil
		}
	}

	latest, err := s.assessments.Latest(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("device %q: %w", req.DeviceID, ErrNoAssessment)
		}
		return nil, nil, err
	}
	assessment := &risk.Assessment{
		DeviceID:         latest.DeviceID,
		Timestamp:        latest.AssessmentDate,
		OverallRiskScore: latest.RiskScore,
		BehavioralRisk:   latest.BehavioralRisk,
		HardwareRisk:     latest.HardwareRisk,
		NetworkRisk:      latest.NetworkRisk,
		AnomalyScore:     latest.AnomalyRisk,
		ThreatIndicators: latest.ThreatIndicators,
		ConfidenceLevel:  latest.ConfidenceScore,
	}

	var reputationScore *float64
	if record := s.network.QueryDeviceReputation(req.DeviceID); record != nil {
		score := record.ReputationScore
		reputationScore = &score
	}

	quote, err := s.engine.GenerateQuote(req.DeviceID, assessment, reputationScore, coverage, duration)
	if err != nil {
		return nil, nil, err
	}
	if req.DeviceCount > 1 {
		quote = s.engine.ApplyVolumeDiscount(quote, req.DeviceCount)
	}

	if err := s.persistPremium(ctx, quote, duration); err != nil {
		return nil, nil, err
	}

	if cacheable {
		if payload, err := json.Marshal(quote); err == nil {
			if err := s.cache.Put(ctx, req.DeviceID, coverage, payload); err != nil {
				s.logger.Warn("quote cache write failed",
					zap.String("device_id", req.DeviceID), zap.Error(err))
			}
		}
	}

	return quote, nil, nil
}

// persistPremium deactivates any previous policy rows for the device
// and stores the new quote as the active premium record.
func (s *Service) persistPremium(ctx context.Context, quote *pricing.Quote, termMonths int) error {
	if err := s.premiums.Deactivate(ctx, quote.DeviceID); err != nil {
		return fmt.Errorf("deactivate premiums: %w", err)
	}

	tier, err := s.model.TierDetails(quote.CoverageLevel)
	if err != nil {
		return err
	}

	volumeDiscount := 0.0
	if v, ok := quote.Terms["volume_discount"].(float64); ok {
		volumeDiscount = v
	}

	record := &model.PremiumRecord{
		DeviceID:           quote.DeviceID,
		BasePremium:        quote.BasePremium,
		RiskMultiplier:     quote.RiskAdjustment,
		ReputationDiscount: quote.ReputationDiscount,
		VolumeDiscount:     volumeDiscount,
		FinalPremium:       quote.AnnualPremiumUSD,
		CoverageTier:       quote.CoverageLevel,
		AnnualDeductible:   float64(tier.Deductible),
		CoverageLimit:      float64(tier.MaxAnnualClaim),
		PolicyStartDate:    quote.QuoteTimestamp,
		PolicyEndDate:      quote.QuoteTimestamp.AddDate(0, termMonths, 0),
		PolicyTermMonths:   termMonths,
	}
	if err := s.premiums.Create(ctx, record); err != nil {
		return fmt.Errorf("persist premium: %w", err)
	}
	return nil
}

// ActivePolicy returns the device's current premium record.
func (s *Service) ActivePolicy(ctx context.Context, deviceID string) (*model.PremiumRecord, error) {
	return s.premiums.ActiveForDevice(ctx, deviceID)
}

// QuoteHistory returns stored premium records for a device, newest
// first.
func (s *Service) QuoteHistory(ctx context.Context, deviceID string, limit int) ([]*model.PremiumRecord, error) {
	if _, err := s.devices.GetByDeviceID(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.premiums.History(ctx, deviceID, limit)
}

// EstimateAnnualCost prices a fleet across a coverage distribution.
func (s *Service) EstimateAnnualCost(req *model.EstimateRequest) (*pricing.CostEstimate, error) {
	return s.engine.EstimateAnnualCost(req.TotalDevices, req.AverageRiskScore, req.AverageReputation, req.CoverageDistribution)
}

// PolicyCost breaks down the annualized cost of a policy term with
// optional bulk pricing.
func (s *Service) PolicyCost(monthlyPremium float64, policyMonths int, includesDiscount bool, bulkCount int) *pricing.PolicyCost {
	return s.model.CalculateAnnualPolicyCost(monthlyPremium, policyMonths, includesDiscount, bulkCount)
}

// CoverageTiers lists the available coverage tiers and their terms.
func (s *Service) CoverageTiers() map[string]*pricing.TierDetails {
	return s.model.AllTiers()
}
