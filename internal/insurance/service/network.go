package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/insurance/model"
	"github.com/securepremium/securepremium/internal/insurance/repository"
	"github.com/securepremium/securepremium/internal/reputation"
)

// ErrReportNotFound is returned when verifying a report identifier the
// network has never seen.
var ErrReportNotFound = errors.New("threat report not found")

// ParticipantRegistration is the result of joining the reputation
// network. Token is empty when token issuance is disabled.
type ParticipantRegistration struct {
	Participant *model.Participant `json:"participant"`
	Token       string             `json:"token,omitempty"`
}

// RegisterParticipant joins an organization to the reputation network,
// persists it, and issues an access token when an issuer is configured.
func (s *Service) RegisterParticipant(ctx context.Context, req *model.RegisterParticipantRequest) (*ParticipantRegistration, error) {
	if _, err := s.participants.GetByParticipantID(ctx, req.ParticipantID); err == nil {
		return nil, fmt.Errorf("participant %q: %w", req.ParticipantID, ErrParticipantExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	s.network.RegisterParticipant(req.ParticipantID)

	participant := &model.Participant{
		ParticipantID:   req.ParticipantID,
		ParticipantName: req.ParticipantName,
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		return nil, fmt.Errorf("persist participant: %w", err)
	}

	result := &ParticipantRegistration{Participant: participant}
	if s.tokens != nil {
		token, err := s.tokens.Issue(req.ParticipantID, req.ParticipantName)
		if err != nil {
			return nil, fmt.Errorf("issue participant token: %w", err)
		}
		result.Token = token
	}
	return result, nil
}

// ListParticipants returns active network participants.
func (s *Service) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	return s.participants.ListActive(ctx)
}

// SubmitThreatReport files a threat report against a device on behalf
// of a participant. The report is applied to the live reputation
// network, persisted, and counted toward both the reporter and the
// target device.
func (s *Service) SubmitThreatReport(ctx context.Context, reporterID string, req *model.ThreatReportRequest) (*reputation.Report, error) {
	report, err := s.network.SubmitThreatReport(reporterID, req.DeviceID, req.ThreatType, req.Severity, req.Description, req.EvidenceHash)
	if err != nil {
		return nil, err
	}

	record := &model.ThreatReportRecord{
		ReportID:             report.ReportID,
		ReportingParticipant: report.ReporterID,
		TargetDeviceID:       report.DeviceID,
		ThreatType:           report.ThreatType,
		Severity:             report.Severity,
		Description:          report.Description,
		EvidenceHash:         report.EvidenceHash,
		ReportDate:           report.Timestamp,
	}
	if err := s.threats.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist threat report: %w", err)
	}

	if err := s.participants.IncrementReports(ctx, reporterID); err != nil {
		s.logger.Warn("participant report counter update failed",
			zap.String("participant_id", reporterID), zap.Error(err))
	}
	if err := s.devices.RecordIncident(ctx, req.DeviceID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("device incident counter update failed",
			zap.String("device_id", req.DeviceID), zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.DeviceID); err != nil {
			s.logger.Warn("quote cache invalidation failed",
				zap.String("device_id", req.DeviceID), zap.Error(err))
		}
	}

	return report, nil
}

// VerifyReport marks a report verified on the network and in storage.
func (s *Service) VerifyReport(ctx context.Context, reportID string, verifierCount int) error {
	if !s.network.VerifyReport(reportID, verifierCount) {
		return fmt.Errorf("report %q: %w", reportID, ErrReportNotFound)
	}
	if err := s.threats.MarkVerified(ctx, reportID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// DeviceReputation returns the decayed reputation record for a device,
// or nil when the network has no reports for it.
func (s *Service) DeviceReputation(deviceID string) *reputation.Record {
	return s.network.QueryDeviceReputation(deviceID)
}

// DeviceRiskLevel classifies a device by network reputation.
func (s *Service) DeviceRiskLevel(deviceID string) string {
	return s.network.DeviceRiskLevel(deviceID)
}

// ThreatSummary aggregates recent intelligence about a device. Returns
// nil when there are no reports.
func (s *Service) ThreatSummary(deviceID string) *reputation.IntelligenceSummary {
	return s.network.ThreatIntelligenceSummary(deviceID)
}

// DeviceThreatReports returns stored reports filed against a device.
func (s *Service) DeviceThreatReports(ctx context.Context, deviceID string, limit int) ([]*model.ThreatReportRecord, error) {
	return s.threats.ForDevice(ctx, deviceID, limit)
}

// UnverifiedReports returns stored reports awaiting verification.
func (s *Service) UnverifiedReports(ctx context.Context, limit int) ([]*model.ThreatReportRecord, error) {
	return s.threats.Unverified(ctx, limit)
}
