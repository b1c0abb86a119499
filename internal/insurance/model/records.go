package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/securepremium/securepremium/internal/risk"
)

// AssessmentRecord is a persisted risk assessment.
type AssessmentRecord struct {
	ID       uuid.UUID `json:"id"        db:"id"`
	DeviceID string    `json:"device_id" db:"device_id"`

	AssessmentDate time.Time `json:"assessment_date" db:"assessment_date"`
	RiskScore      float64   `json:"risk_score"      db:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"      db:"risk_level"`

	BehavioralRisk float64 `json:"behavioral_risk" db:"behavioral_risk"`
	HardwareRisk   float64 `json:"hardware_risk"   db:"hardware_risk"`
	NetworkRisk    float64 `json:"network_risk"    db:"network_risk"`
	AnomalyRisk    float64 `json:"anomaly_risk"    db:"anomaly_risk"`

	AssessmentReason string  `json:"assessment_reason" db:"assessment_reason"`
	AssessorType     string  `json:"assessor_type"     db:"assessor_type"`
	ConfidenceScore  float64 `json:"confidence_score"  db:"confidence_score"`

	// ThreatIndicators carries the indicator strings emitted by the
	// calculator, stored as JSON.
	ThreatIndicators []string `json:"threat_indicators" db:"threat_indicators"`
}

// PremiumRecord is a persisted premium quote turned policy.
type PremiumRecord struct {
	ID       uuid.UUID `json:"id"        db:"id"`
	DeviceID string    `json:"device_id" db:"device_id"`

	BasePremium        float64 `json:"base_premium"        db:"base_premium"`
	RiskMultiplier     float64 `json:"risk_multiplier"     db:"risk_multiplier"`
	ReputationDiscount float64 `json:"reputation_discount" db:"reputation_discount"`
	VolumeDiscount     float64 `json:"volume_discount"     db:"volume_discount"`
	FinalPremium       float64 `json:"final_premium"       db:"final_premium"`

	CoverageTier    string  `json:"coverage_tier"    db:"coverage_tier"`
	AnnualDeductible float64 `json:"annual_deductible" db:"annual_deductible"`
	CoverageLimit   float64 `json:"coverage_limit"   db:"coverage_limit"`

	PolicyStartDate  time.Time `json:"policy_start_date"  db:"policy_start_date"`
	PolicyEndDate    time.Time `json:"policy_end_date"    db:"policy_end_date"`
	PolicyTermMonths int       `json:"policy_term_months" db:"policy_term_months"`

	IsActive    bool      `json:"is_active"    db:"is_active"`
	CreatedDate time.Time `json:"created_date" db:"created_date"`
}

// ThreatReportRecord is a persisted threat intelligence report.
type ThreatReportRecord struct {
	ID       uuid.UUID `json:"id"        db:"id"`
	ReportID string    `json:"report_id" db:"report_id"`

	ReportingParticipant string `json:"reporting_participant" db:"reporting_participant"`
	TargetDeviceID       string `json:"target_device_id"      db:"target_device_id"`

	ThreatType   string `json:"threat_type"  db:"threat_type"`
	Severity     string `json:"severity"     db:"severity"`
	Description  string `json:"description"  db:"description"`
	EvidenceHash string `json:"-"            db:"evidence_hash"`

	Verified   bool      `json:"verified"    db:"verified"`
	ReportDate time.Time `json:"report_date" db:"report_date"`
}

// Participant is a persisted reputation network participant.
type Participant struct {
	ID              uuid.UUID `json:"id"               db:"id"`
	ParticipantID   string    `json:"participant_id"   db:"participant_id"`
	ParticipantName string    `json:"participant_name" db:"participant_name"`

	IsActive              bool    `json:"is_active"               db:"is_active"`
	TotalReportsSubmitted int     `json:"total_reports_submitted" db:"total_reports_submitted"`
	ReputationScore       float64 `json:"reputation_score"        db:"reputation_score"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AssessmentRequest is the payload for running a risk assessment.
type AssessmentRequest struct {
	DeviceID string        `json:"device_id" binding:"required"`
	Metrics  *risk.Metrics `json:"metrics" binding:"required"`
	Baseline risk.Baseline `json:"historical_baseline"`
	Reason   string        `json:"assessment_reason"`
}

// QuoteRequest is the payload for quote generation.
type QuoteRequest struct {
	DeviceID             string `json:"device_id" binding:"required"`
	CoverageLevel        string `json:"coverage_level"`
	PolicyDurationMonths int    `json:"policy_duration_months"`
	DeviceCount          int    `json:"device_count"`
}

// EstimateRequest is the payload for fleet cost estimation.
type EstimateRequest struct {
	TotalDevices         int                `json:"total_devices" binding:"required"`
	AverageRiskScore     float64            `json:"average_risk_score"`
	AverageReputation    float64            `json:"average_reputation"`
	CoverageDistribution map[string]float64 `json:"coverage_distribution" binding:"required"`
}

// RegisterParticipantRequest is the payload for joining the reputation
// network.
type RegisterParticipantRequest struct {
	ParticipantID   string `json:"participant_id" binding:"required"`
	ParticipantName string `json:"participant_name"`
}

// ThreatReportRequest is the payload for submitting a threat report.
// ReporterID is only honored when token auth is disabled; with auth
// enabled the reporter comes from the verified token claims.
type ThreatReportRequest struct {
	ReporterID   string `json:"reporter_id"`
	DeviceID     string `json:"device_id" binding:"required"`
	ThreatType   string `json:"threat_type" binding:"required"`
	Severity     string `json:"severity" binding:"required"`
	Description  string `json:"description"`
	EvidenceHash string `json:"evidence_hash"`
}
