package reputation

import (
	"encoding/json"
	"math"
	"time"
)

// VerificationLevel marks how much corroboration a reputation record has.
const (
	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
)

// RiskLevel buckets derived from a reputation score.
const (
	RiskTrustworthy = "trustworthy"
	RiskNeutral     = "neutral"
	RiskSuspicious  = "suspicious"
	RiskDangerous   = "dangerous"
	RiskUnrated     = "unrated"
)

// Record is the collective reputation of a single device. It is created
// lazily on the first threat report and mutated by subsequent reports
// and by decay. The score stays in [0,1]; 0 is worst.
type Record struct {
	DeviceID          string
	ReputationScore   float64
	ReportsCount      int
	LastUpdated       time.Time
	Contributors      map[string]struct{}
	ThreatHistory     []string
	VerificationLevel string
}

// MarshalJSON renders the record with a rounded score, the contributor
// count rather than the contributor set, and only the ten most recent
// threat types.
func (r *Record) MarshalJSON() ([]byte, error) {
	history := r.ThreatHistory
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	if history == nil {
		history = []string{}
	}
	return json.Marshal(struct {
		DeviceID          string   `json:"device_id"`
		ReputationScore   float64  `json:"reputation_score"`
		ReportsCount      int      `json:"reports_count"`
		LastUpdated       string   `json:"last_updated"`
		ContributorCount  int      `json:"contributor_count"`
		ThreatHistory     []string `json:"threat_history"`
		VerificationLevel string   `json:"verification_level"`
	}{
		DeviceID:          r.DeviceID,
		ReputationScore:   round4(r.ReputationScore),
		ReportsCount:      r.ReportsCount,
		LastUpdated:       r.LastUpdated.Format(time.RFC3339),
		ContributorCount:  len(r.Contributors),
		ThreatHistory:     history,
		VerificationLevel: r.VerificationLevel,
	})
}

// Report is a single piece of threat intelligence submitted by a
// network participant. Immutable once created, except for the verified
// flag which flips through Network.VerifyReport.
type Report struct {
	ReportID     string    `json:"report_id"`
	ReporterID   string    `json:"reporter_id"`
	DeviceID     string    `json:"device_id"`
	ThreatType   string    `json:"threat_type"`
	Severity     string    `json:"severity"`
	Description  string    `json:"description"`
	EvidenceHash string    `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
	Verified     bool      `json:"verified"`
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
