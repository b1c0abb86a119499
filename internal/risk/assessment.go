package risk

import (
	"encoding/json"
	"math"
	"time"
)

// AssessmentVersion is the format version stamped on every assessment.
const AssessmentVersion = "1.0"

// Category is a human-readable risk bucket derived from an overall score.
type Category string

const (
	CategoryCritical Category = "critical"
	CategoryHigh     Category = "high"
	CategoryMedium   Category = "medium"
	CategoryLow      Category = "low"
	CategoryMinimal  Category = "minimal"
)

// Assessment is the immutable result of a single risk calculation.
// It is created once per CalculateRisk call and owned by the caller.
type Assessment struct {
	DeviceID          string
	Timestamp         time.Time
	OverallRiskScore  float64
	BehavioralRisk    float64
	HardwareRisk      float64
	NetworkRisk       float64
	AnomalyScore      float64
	ThreatIndicators  []string
	ConfidenceLevel   float64
	AssessmentVersion string
}

// MarshalJSON renders the assessment with scores rounded to four decimal
// places and the timestamp in RFC 3339, matching the documented wire format.
func (a Assessment) MarshalJSON() ([]byte, error) {
	indicators := a.ThreatIndicators
	if indicators == nil {
		indicators = []string{}
	}
	return json.Marshal(struct {
		DeviceID          string   `json:"device_id"`
		Timestamp         string   `json:"timestamp"`
		OverallRiskScore  float64  `json:"overall_risk_score"`
		BehavioralRisk    float64  `json:"behavioral_risk"`
		HardwareRisk      float64  `json:"hardware_risk"`
		NetworkRisk       float64  `json:"network_risk"`
		AnomalyScore      float64  `json:"anomaly_score"`
		ThreatIndicators  []string `json:"threat_indicators"`
		ConfidenceLevel   float64  `json:"confidence_level"`
		AssessmentVersion string   `json:"assessment_version"`
	}{
		DeviceID:          a.DeviceID,
		Timestamp:         a.Timestamp.UTC().Format(time.RFC3339),
		OverallRiskScore:  round4(a.OverallRiskScore),
		BehavioralRisk:    round4(a.BehavioralRisk),
		HardwareRisk:      round4(a.HardwareRisk),
		NetworkRisk:       round4(a.NetworkRisk),
		AnomalyScore:      round4(a.AnomalyScore),
		ThreatIndicators:  indicators,
		ConfidenceLevel:   round4(a.ConfidenceLevel),
		AssessmentVersion: a.AssessmentVersion,
	})
}

// Categorize maps an overall risk score to its category.
// Bucket boundaries are inclusive at the lower end.
func Categorize(score float64) Category {
	switch {
	case score >= 0.85:
		return CategoryCritical
	case score >= 0.70:
		return CategoryHigh
	case score >= 0.50:
		return CategoryMedium
	case score >= 0.30:
		return CategoryLow
	default:
		return CategoryMinimal
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
