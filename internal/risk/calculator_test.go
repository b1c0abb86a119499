package risk_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/risk"
)

type stubFingerprinter struct {
	hash string
	err  error
}

func (s *stubFingerprinter) FingerprintHash() (string, error) {
	return s.hash, s.err
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func timePtr(t time.Time) *time.Time {
	return &t
}

func newCalculator() *risk.Calculator {
	return risk.NewCalculator(nil, zap.NewNop())
}

func TestCalculateRisk_cleanDevice(t *testing.T) {
	c := newCalculator()

	now := time.Now().UTC()
	metrics := &risk.Metrics{
		CPUUsage:      floatPtr(20.0),
		MemoryUsage:   floatPtr(35.0),
		TPMStatus:     risk.TPMHealthy,
		LoginFailures: intPtr(0),
		Timestamp:     timePtr(now),
	}

	a := c.CalculateRisk("dev-1", metrics, nil, nil)

	if a.OverallRiskScore != 0.0 {
		t.Errorf("clean device score: got %v, want 0", a.OverallRiskScore)
	}
	if len(a.ThreatIndicators) != 0 {
		t.Errorf("clean device indicators: got %v", a.ThreatIndicators)
	}
	// All five telemetry fields present, snapshot fresh.
	if a.ConfidenceLevel != 1.0 {
		t.Errorf("confidence: got %v, want 1.0", a.ConfidenceLevel)
	}
	if a.AssessmentVersion != risk.AssessmentVersion {
		t.Errorf("assessment version: got %q", a.AssessmentVersion)
	}
}

func TestCalculateRisk_adversarialInputsStayBounded(t *testing.T) {
	c := newCalculator()

	now := time.Now().UTC()
	metrics := &risk.Metrics{
		CPUUsage:                floatPtr(100.0),
		MemoryUsage:             floatPtr(100.0),
		NetworkActivity:         floatPtr(1e9),
		DiskActivity:            floatPtr(1e9),
		LoginFailures:           intPtr(1000),
		TotalLoginAttempts:      intPtr(1000),
		TPMStatus:               risk.TPMCompromised,
		ResourceUsageSpike:      true,
		UnusualAccessTime:       true,
		ComponentMismatch:       true,
		FirmwareAnomaly:         true,
		DiskEncryptionDisabled:  true,
		GeographicInconsistency: true,
		MLAnomalyScore:          floatPtr(1.0),
		Timestamp:               timePtr(now),
	}
	baseline := risk.Baseline{
		"cpu_usage":        {Mean: 10.0, Stddev: 1.0},
		"memory_usage":     {Mean: 20.0, Stddev: 1.0},
		"network_activity": {Mean: 5.0, Stddev: 0.5},
		"disk_activity":    {Mean: 5.0, Stddev: 0.5},
	}
	netrep := &risk.NetworkReputation{
		Blacklisted:     true,
		PeerAverageRisk: 1.0,
		VPNDetected:     true,
	}

	a := c.CalculateRisk("dev-1", metrics, baseline, netrep)

	for name, score := range map[string]float64{
		"overall":    a.OverallRiskScore,
		"behavioral": a.BehavioralRisk,
		"hardware":   a.HardwareRisk,
		"network":    a.NetworkRisk,
		"anomaly":    a.AnomalyScore,
	} {
		if score < 0.0 || score > 1.0 {
			t.Errorf("%s score out of [0,1]: %v", name, score)
		}
	}
	if a.OverallRiskScore < 0.9 {
		t.Errorf("fully compromised device should score near 1, got %v", a.OverallRiskScore)
	}
	if len(a.ThreatIndicators) < 4 {
		t.Errorf("expected broad threat indicators, got %v", a.ThreatIndicators)
	}
}

func TestCalculateRisk_componentWeights(t *testing.T) {
	c := newCalculator()

	// Component mismatch alone: hardware 0.40, weighted 0.35.
	metrics := &risk.Metrics{ComponentMismatch: true}
	a := c.CalculateRisk("dev-1", metrics, nil, nil)

	if math.Abs(a.HardwareRisk-0.40) > 1e-9 {
		t.Errorf("hardware risk: got %v, want 0.40", a.HardwareRisk)
	}
	if math.Abs(a.OverallRiskScore-0.40*0.35) > 1e-9 {
		t.Errorf("overall: got %v, want %v", a.OverallRiskScore, 0.40*0.35)
	}
}

func TestBehavioralRisk_loginFailureRateCapped(t *testing.T) {
	c := newCalculator()

	// All logins failing caps the login contribution at 0.3.
	metrics := &risk.Metrics{
		LoginFailures:      intPtr(50),
		TotalLoginAttempts: intPtr(50),
	}
	a := c.CalculateRisk("dev-1", metrics, nil, nil)
	if math.Abs(a.BehavioralRisk-0.3) > 1e-9 {
		t.Errorf("behavioral risk: got %v, want 0.3", a.BehavioralRisk)
	}

	// Zero attempts reported: failures counted against a single attempt.
	metrics = &risk.Metrics{
		LoginFailures:      intPtr(2),
		TotalLoginAttempts: intPtr(0),
	}
	a = c.CalculateRisk("dev-1", metrics, nil, nil)
	if math.Abs(a.BehavioralRisk-0.3) > 1e-9 {
		t.Errorf("behavioral risk with zero attempts: got %v, want 0.3", a.BehavioralRisk)
	}
}

func TestAnomalyScore_mlScoreWinsOverFlags(t *testing.T) {
	c := newCalculator()

	metrics := &risk.Metrics{
		MLAnomalyScore: floatPtr(0.25),
		AnomalyFlags:   []string{"a", "b", "c", "d", "e", "f", "g", "h"},
	}
	a := c.CalculateRisk("dev-1", metrics, nil, nil)
	if a.AnomalyScore != 0.25 {
		t.Errorf("ml score should take precedence: got %v", a.AnomalyScore)
	}

	metrics = &risk.Metrics{AnomalyFlags: []string{"a", "b", "c"}}
	a = c.CalculateRisk("dev-1", metrics, nil, nil)
	if math.Abs(a.AnomalyScore-0.45) > 1e-9 {
		t.Errorf("flag-based anomaly score: got %v, want 0.45", a.AnomalyScore)
	}
}

func TestConfidence_staleness(t *testing.T) {
	c := newCalculator()

	full := &risk.Metrics{
		CPUUsage:      floatPtr(10.0),
		MemoryUsage:   floatPtr(10.0),
		TPMStatus:     risk.TPMHealthy,
		LoginFailures: intPtr(0),
	}

	fresh := *full
	fresh.Timestamp = timePtr(time.Now().UTC())
	if got := c.CalculateRisk("dev-1", &fresh, nil, nil).ConfidenceLevel; got != 1.0 {
		t.Errorf("fresh confidence: got %v, want 1.0", got)
	}

	daily := *full
	daily.Timestamp = timePtr(time.Now().UTC().Add(-6 * time.Hour))
	if got := c.CalculateRisk("dev-1", &daily, nil, nil).ConfidenceLevel; math.Abs(got-0.8) > 1e-9 {
		t.Errorf("6h-old confidence: got %v, want 0.8", got)
	}

	stale := *full
	stale.Timestamp = timePtr(time.Now().UTC().Add(-48 * time.Hour))
	if got := c.CalculateRisk("dev-1", &stale, nil, nil).ConfidenceLevel; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("48h-old confidence: got %v, want 0.5", got)
	}

	// Missing timestamp drops one of five fields and skips staleness.
	if got := c.CalculateRisk("dev-1", full, nil, nil).ConfidenceLevel; math.Abs(got-0.8) > 1e-9 {
		t.Errorf("no-timestamp confidence: got %v, want 0.8", got)
	}
}

func TestFingerprintEnrichment(t *testing.T) {
	c := risk.NewCalculator(&stubFingerprinter{hash: "abc123"}, zap.NewNop())

	metrics := &risk.Metrics{}
	c.CalculateRisk("dev-1", metrics, nil, nil)
	if metrics.FingerprintHash != "abc123" {
		t.Errorf("fingerprint hash: got %q, want abc123", metrics.FingerprintHash)
	}

	// Provider failure degrades gracefully.
	c = risk.NewCalculator(&stubFingerprinter{err: errors.New("provider down")}, zap.NewNop())
	metrics = &risk.Metrics{}
	a := c.CalculateRisk("dev-1", metrics, nil, nil)
	if a == nil || metrics.FingerprintHash != "" {
		t.Error("provider failure should leave hash empty without failing")
	}
}

func TestCategorize_boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  risk.Category
	}{
		{1.0, risk.CategoryCritical},
		{0.85, risk.CategoryCritical},
		{0.849999, risk.CategoryHigh},
		{0.70, risk.CategoryHigh},
		{0.50, risk.CategoryMedium},
		{0.30, risk.CategoryLow},
		{0.299999, risk.CategoryMinimal},
		{0.0, risk.CategoryMinimal},
	}
	for _, tc := range cases {
		if got := risk.Categorize(tc.score); got != tc.want {
			t.Errorf("Categorize(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestAssessmentMarshalJSON_rounding(t *testing.T) {
	a := &risk.Assessment{
		DeviceID:          "dev-1",
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OverallRiskScore:  0.123456,
		BehavioralRisk:    0.111111,
		ThreatIndicators:  []string{"Hardware integrity concerns"},
		ConfidenceLevel:   0.87654,
		AssessmentVersion: risk.AssessmentVersion,
	}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		DeviceID         string  `json:"device_id"`
		Timestamp        string  `json:"timestamp"`
		OverallRiskScore float64 `json:"overall_risk_score"`
		ConfidenceLevel  float64 `json:"confidence_level"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("device id: got %q", got.DeviceID)
	}
	if got.OverallRiskScore != 0.1235 {
		t.Errorf("score rounding: got %v, want 0.1235", got.OverallRiskScore)
	}
	if got.ConfidenceLevel != 0.8765 {
		t.Errorf("confidence rounding: got %v, want 0.8765", got.ConfidenceLevel)
	}
	if got.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp format: got %q", got.Timestamp)
	}
}
