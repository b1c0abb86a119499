package model

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the stored risk bucket for a device's latest assessment.
type RiskLevel string

const (
	RiskLevelMinimal  RiskLevel = "minimal"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Device is a registered device profile row.
type Device struct {
	ID              uuid.UUID `json:"id"               db:"id"`
	DeviceID        string    `json:"device_id"        db:"device_id"`
	FingerprintHash string    `json:"fingerprint_hash" db:"fingerprint_hash"`
	CPU             string    `json:"cpu"              db:"cpu"`
	RAM             string    `json:"ram"              db:"ram"`
	OS              string    `json:"os"               db:"os"`
	OSVersion       string    `json:"os_version"       db:"os_version"`
	Hostname        string    `json:"hostname"         db:"hostname"`

	RegistrationDate   time.Time  `json:"registration_date"              db:"registration_date"`
	LastAssessmentDate *time.Time `json:"last_assessment_date,omitempty" db:"last_assessment_date"`
	TotalAssessments   int        `json:"total_assessments"              db:"total_assessments"`

	CurrentRiskScore float64   `json:"current_risk_score" db:"current_risk_score"`
	RiskLevel        RiskLevel `json:"risk_level"         db:"risk_level"`

	IsActive          bool       `json:"is_active"                    db:"is_active"`
	SecurityIncidents int        `json:"security_incidents"           db:"security_incidents"`
	LastIncidentDate  *time.Time `json:"last_incident_date,omitempty" db:"last_incident_date"`
}

// RegisterDeviceRequest is the payload for device registration.
type RegisterDeviceRequest struct {
	DeviceID        string `json:"device_id" binding:"required"`
	FingerprintHash string `json:"fingerprint_hash"`
	CPU             string `json:"cpu"`
	RAM             string `json:"ram"`
	OS              string `json:"os"`
	OSVersion       string `json:"os_version"`
	Hostname        string `json:"hostname"`
}

// SecurityEventRequest is the payload for recording a security incident
// against a device.
type SecurityEventRequest struct {
	EventType   string `json:"event_type" binding:"required"`
	Severity    string `json:"severity" binding:"required"`
	Description string `json:"description"`
}

// LocationRequest is the payload for recording a geographic
// observation.
type LocationRequest struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ErrValidation is returned by service methods when the caller supplies
// invalid input that cannot be expressed as a typed sentinel.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
