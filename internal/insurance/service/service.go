// Package service contains the business logic tying the risk, scoring,
// reputation, and pricing cores to persistence and the reputation
// network surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/devicescore"
	"github.com/securepremium/securepremium/internal/identity"
	"github.com/securepremium/securepremium/internal/insurance/model"
	"github.com/securepremium/securepremium/internal/insurance/repository"
	"github.com/securepremium/securepremium/internal/pricing"
	"github.com/securepremium/securepremium/internal/reputation"
	"github.com/securepremium/securepremium/internal/risk"
)

var (
	// ErrDeviceExists is returned when registering a device identifier
	// that is already registered.
	ErrDeviceExists = errors.New("device already registered")

	// ErrParticipantExists is returned when a participant identifier is
	// already registered on the network.
	ErrParticipantExists = errors.New("participant already registered")
)

// deviceRepo is the persistence interface for device profiles.
// *repository.DeviceRepository satisfies this interface.
type deviceRepo interface {
	Create(ctx context.Context, device *model.Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	List(ctx context.Context, riskLevel string, limit, offset int) ([]*model.Device, error)
	UpdateRiskState(ctx context.Context, deviceID string, score float64, level model.RiskLevel) error
	RecordIncident(ctx context.Context, deviceID string) error
	CountActive(ctx context.Context) (int, error)
	CountByRiskLevel(ctx context.Context) (map[string]int, error)
}

// assessmentRepo is the persistence interface for assessment history.
type assessmentRepo interface {
	Create(ctx context.Context, a *model.AssessmentRecord) error
	Latest(ctx context.Context, deviceID string) (*model.AssessmentRecord, error)
	History(ctx context.Context, deviceID string, limit int) ([]*model.AssessmentRecord, error)
	CountSince(ctx context.Context, cutoff time.Time) (int, error)
}

// premiumRepo is the persistence interface for premium records.
type premiumRepo interface {
	Create(ctx context.Context, p *model.PremiumRecord) error
	ActiveForDevice(ctx context.Context, deviceID string) (*model.PremiumRecord, error)
	History(ctx context.Context, deviceID string, limit int) ([]*model.PremiumRecord, error)
	Deactivate(ctx context.Context, deviceID string) error
}

// threatRepo is the persistence interface for threat reports.
type threatRepo interface {
	Create(ctx context.Context, t *model.ThreatReportRecord) error
	ForDevice(ctx context.Context, deviceID string, limit int) ([]*model.ThreatReportRecord, error)
	BySeverity(ctx context.Context, severity string, limit int) ([]*model.ThreatReportRecord, error)
	Unverified(ctx context.Context, limit int) ([]*model.ThreatReportRecord, error)
	MarkVerified(ctx context.Context, reportID string) error
	Count(ctx context.Context) (int, error)
}

// participantRepo is the persistence interface for network
// participants.
type participantRepo interface {
	Create(ctx context.Context, p *model.Participant) error
	GetByParticipantID(ctx context.Context, participantID string) (*model.Participant, error)
	ListActive(ctx context.Context) ([]*model.Participant, error)
	IncrementReports(ctx context.Context, participantID string) error
}

// QuoteCache caches serialized quotes. *quotecache.Cache satisfies this
// interface.
type QuoteCache interface {
	Put(ctx context.Context, deviceID, coverageLevel string, quoteJSON []byte) error
	Get(ctx context.Context, deviceID, coverageLevel string) ([]byte, error)
	Invalidate(ctx context.Context, deviceID string) error
}

// Service orchestrates the scoring and pricing cores over persistence.
type Service struct {
	devices      deviceRepo
	assessments  assessmentRepo
	premiums     premiumRepo
	threats      threatRepo
	participants participantRepo

	calculator *risk.Calculator
	scorer     *devicescore.Scorer
	network    *reputation.Network
	engine     *pricing.Engine
	model      *pricing.Model

	cache  QuoteCache            // nil = quote caching disabled
	tokens *identity.TokenIssuer // nil = no participant tokens issued

	logger *zap.Logger
}

// Deps bundles the repositories and cores the Service needs. The
// repository fields accept the concrete repository types or any stub
// satisfying the same method sets.
type Deps struct {
	Devices      deviceRepo
	Assessments  assessmentRepo
	Premiums     premiumRepo
	Threats      threatRepo
	Participants participantRepo

	Calculator *risk.Calculator
	Scorer     *devicescore.Scorer
	Network    *reputation.Network
	Engine     *pricing.Engine
	Model      *pricing.Model
}

// New creates a Service from its dependencies.
func New(d Deps, logger *zap.Logger) *Service {
	return &Service{
		devices:      d.Devices,
		assessments:  d.Assessments,
		premiums:     d.Premiums,
		threats:      d.Threats,
		participants: d.Participants,
		calculator:   d.Calculator,
		scorer:       d.Scorer,
		network:      d.Network,
		engine:       d.Engine,
		model:        d.Model,
		logger:       logger,
	}
}

// SetQuoteCache attaches a quote cache. Passing nil disables caching.
func (s *Service) SetQuoteCache(c QuoteCache) {
	s.cache = c
}

// SetTokenIssuer attaches a participant token issuer. Passing nil
// disables token issuance.
func (s *Service) SetTokenIssuer(t *identity.TokenIssuer) {
	s.tokens = t
}

// Hydrate loads persisted participants and devices into the in-memory
// network and scorer after a restart. Reputation records rebuild
// incrementally from new reports.
func (s *Service) Hydrate(ctx context.Context) error {
	participants, err := s.participants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	for _, p := range participants {
		s.network.RegisterParticipant(p.ParticipantID)
	}

	devices, err := s.devices.List(ctx, "", 10000, 0)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	for _, d := range devices {
		if _, err := s.scorer.RegisterDevice(d.DeviceID, d.FingerprintHash, nil, nil); err != nil {
			s.logger.Warn("hydrate device profile",
				zap.String("device_id", d.DeviceID), zap.Error(err))
		}
	}

	s.logger.Info("state hydrated",
		zap.Int("participants", len(participants)),
		zap.Int("devices", len(devices)),
	)
	return nil
}

// RegisterDevice registers a device profile and persists it.
func (s *Service) RegisterDevice(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error) {
	if _, err := s.devices.GetByDeviceID(ctx, req.DeviceID); err == nil {
		return nil, fmt.Errorf("device %q: %w", req.DeviceID, ErrDeviceExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hardwareInfo := map[string]string{
		"cpu": req.CPU,
		"ram": req.RAM,
	}
	systemInfo := map[string]string{
		"os":         req.OS,
		"os_version": req.OSVersion,
		"hostname":   req.Hostname,
	}

	profile, err := s.scorer.RegisterDevice(req.DeviceID, req.FingerprintHash, hardwareInfo, systemInfo)
	if err != nil {
		return nil, err
	}

	device := &model.Device{
		DeviceID:        req.DeviceID,
		FingerprintHash: profile.FingerprintHash,
		CPU:             orUnknown(req.CPU),
		RAM:             orUnknown(req.RAM),
		OS:              orUnknown(req.OS),
		OSVersion:       orUnknown(req.OSVersion),
		Hostname:        orUnknown(req.Hostname),
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("persist device: %w", err)
	}
	return device, nil
}

// GetDevice returns the persisted device profile.
func (s *Service) GetDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	return s.devices.GetByDeviceID(ctx, deviceID)
}

// ListDevices returns active devices, optionally filtered by risk
// level.
func (s *Service) ListDevices(ctx context.Context, riskLevel string, limit, offset int) ([]*model.Device, error) {
	return s.devices.List(ctx, riskLevel, limit, offset)
}

// DeviceScore computes the device trust score and its breakdown. A
// device persisted before the last restart is hydrated into the scorer
// on first access.
func (s *Service) DeviceScore(ctx context.Context, deviceID string) (float64, *devicescore.Breakdown, devicescore.Category, error) {
	score, breakdown, err := s.scorer.CalculateDeviceScore(deviceID)
	if errors.Is(err, devicescore.ErrNotFound) {
		device, repoErr := s.devices.GetByDeviceID(ctx, deviceID)
		if repoErr != nil {
			return 0, nil, "", repoErr
		}
		if _, hydrateErr := s.scorer.RegisterDevice(device.DeviceID, device.FingerprintHash, nil, nil); hydrateErr != nil {
			return 0, nil, "", hydrateErr
		}
		score, breakdown, err = s.scorer.CalculateDeviceScore(deviceID)
	}
	if err != nil {
		return 0, nil, "", err
	}
	return score, breakdown, devicescore.Categorize(score), nil
}

// AddSecurityEvent records an incident on both the in-memory profile
// and the device row.
func (s *Service) AddSecurityEvent(ctx context.Context, deviceID string, req *model.SecurityEventRequest) error {
	if err := s.scorer.AddSecurityEvent(deviceID, req.EventType, req.Severity, req.Description); err != nil {
		if !errors.Is(err, devicescore.ErrNotFound) {
			return err
		}
		device, repoErr := s.devices.GetByDeviceID(ctx, deviceID)
		if repoErr != nil {
			return repoErr
		}
		if _, hydrateErr := s.scorer.RegisterDevice(device.DeviceID, device.FingerprintHash, nil, nil); hydrateErr != nil {
			return hydrateErr
		}
		if err := s.scorer.AddSecurityEvent(deviceID, req.EventType, req.Severity, req.Description); err != nil {
			return err
		}
	}
	return s.devices.RecordIncident(ctx, deviceID)
}

// RecordLocation appends a geographic observation to the device's
// profile.
func (s *Service) RecordLocation(ctx context.Context, deviceID string, req *model.LocationRequest) error {
	loc := devicescore.Location{
		City:      req.City,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: time.Now().UTC(),
	}
	err := s.scorer.RecordLocation(deviceID, loc)
	if errors.Is(err, devicescore.ErrNotFound) {
		device, repoErr := s.devices.GetByDeviceID(ctx, deviceID)
		if repoErr != nil {
			return repoErr
		}
		if _, hydrateErr := s.scorer.RegisterDevice(device.DeviceID, device.FingerprintHash, nil, nil); hydrateErr != nil {
			return hydrateErr
		}
		return s.scorer.RecordLocation(deviceID, loc)
	}
	return err
}

// Assess runs the risk calculator for a device, persists the result,
// and updates the device's stored risk state. The quote cache for the
// device is invalidated since its pricing inputs changed.
func (s *Service) Assess(ctx context.Context, req *model.AssessmentRequest, netrep *risk.NetworkReputation) (*risk.Assessment, risk.Category, error) {
	if _, err := s.devices.GetByDeviceID(ctx, req.DeviceID); err != nil {
		return nil, "", err
	}

	assessment := s.calculator.CalculateRisk(req.DeviceID, req.Metrics, req.Baseline, netrep)
	category := risk.Categorize(assessment.OverallRiskScore)

	record := &model.AssessmentRecord{
		DeviceID:         req.DeviceID,
		AssessmentDate:   assessment.Timestamp,
		RiskScore:        assessment.OverallRiskScore,
		RiskLevel:        model.RiskLevel(category),
		BehavioralRisk:   assessment.BehavioralRisk,
		HardwareRisk:     assessment.HardwareRisk,
		NetworkRisk:      assessment.NetworkRisk,
		AnomalyRisk:      assessment.AnomalyScore,
		AssessmentReason: req.Reason,
		ConfidenceScore:  assessment.ConfidenceLevel,
		ThreatIndicators: assessment.ThreatIndicators,
	}
	if err := s.assessments.Create(ctx, record); err != nil {
		return nil, "", fmt.Errorf("persist assessment: %w", err)
	}
	if err := s.devices.UpdateRiskState(ctx, req.DeviceID, assessment.OverallRiskScore, record.RiskLevel); err != nil {
		return nil, "", fmt.Errorf("update device risk state: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.DeviceID); err != nil {
			s.logger.Warn("quote cache invalidation failed",
				zap.String("device_id", req.DeviceID), zap.Error(err))
		}
	}

	return assessment, category, nil
}

// AssessmentHistory returns stored assessments for a device, newest
// first.
func (s *Service) AssessmentHistory(ctx context.Context, deviceID string, limit int) ([]*model.AssessmentRecord, error) {
	if _, err := s.devices.GetByDeviceID(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.assessments.History(ctx, deviceID, limit)
}

// Stats summarizes platform and network activity.
type Stats struct {
	ActiveDevices      int                    `json:"active_devices"`
	DevicesByRiskLevel map[string]int         `json:"devices_by_risk_level"`
	AssessmentsLast30  int                    `json:"assessments_last_30_days"`
	StoredReports      int                    `json:"stored_reports"`
	Network            *reputation.Statistics `json:"network"`
}

// PlatformStats combines repository counts with live network
// statistics.
func (s *Service) PlatformStats(ctx context.Context) (*Stats, error) {
	devices, err := s.devices.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	byLevel, err := s.devices.CountByRiskLevel(ctx)
	if err != nil {
		return nil, err
	}
	assessments, err := s.assessments.CountSince(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		return nil, err
	}
	reports, err := s.threats.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ActiveDevices:      devices,
		DevicesByRiskLevel: byLevel,
		AssessmentsLast30:  assessments,
		StoredReports:      reports,
		Network:            s.network.NetworkStatistics(),
	}, nil
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
