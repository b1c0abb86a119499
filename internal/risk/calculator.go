// Package risk implements the rule-based risk calculation engine.
// It evaluates device compromise likelihood across four weighted
// dimensions (behavioral, hardware, network, anomaly) and produces an
// Assessment with threat indicators and a confidence level.
package risk

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// FingerprintProvider supplies a device fingerprint hash when telemetry
// arrives without one. *fingerprint.Service satisfies this interface.
type FingerprintProvider interface {
	FingerprintHash() (string, error)
}

// Aggregation weights. Hardware integrity carries the most weight.
const (
	weightBehavioral = 0.25
	weightHardware   = 0.35
	weightNetwork    = 0.20
	weightAnomaly    = 0.20
)

// Calculator computes risk assessments from raw device telemetry.
// It is stateless apart from its optional collaborators and safe for
// concurrent use.
type Calculator struct {
	fp     FingerprintProvider // nil = no fingerprint enrichment
	logger *zap.Logger
}

// NewCalculator creates a Calculator. fp may be nil to disable
// fingerprint enrichment.
func NewCalculator(fp FingerprintProvider, logger *zap.Logger) *Calculator {
	return &Calculator{fp: fp, logger: logger}
}

// CalculateRisk produces a full risk assessment for a device.
// historical and netrep may be nil; their factors then contribute zero.
func (c *Calculator) CalculateRisk(deviceID string, metrics *Metrics, historical Baseline, netrep *NetworkReputation) *Assessment {
	now := time.Now().UTC()

	if c.fp != nil && metrics.FingerprintHash == "" {
		hash, err := c.fp.FingerprintHash()
		if err != nil {
			c.logger.Warn("fingerprint provider failed, proceeding without hash", zap.Error(err))
		} else {
			metrics.FingerprintHash = hash
		}
	}

	behavioral := c.behavioralRisk(metrics, historical)
	hardware := c.hardwareRisk(metrics)
	network := c.networkRisk(metrics, netrep)
	anomaly := c.anomalyScore(metrics)

	overall := capScore(behavioral*weightBehavioral +
		hardware*weightHardware +
		network*weightNetwork +
		anomaly*weightAnomaly)

	a := &Assessment{
		DeviceID:          deviceID,
		Timestamp:         now,
		OverallRiskScore:  overall,
		BehavioralRisk:    behavioral,
		HardwareRisk:      hardware,
		NetworkRisk:       network,
		AnomalyScore:      anomaly,
		ThreatIndicators:  threatIndicators(behavioral, hardware, network, anomaly),
		ConfidenceLevel:   c.confidence(metrics, now),
		AssessmentVersion: AssessmentVersion,
	}

	c.logger.Info("risk assessment completed",
		zap.String("device_id", deviceID),
		zap.Float64("overall_risk_score", a.OverallRiskScore),
	)
	return a
}

// behavioralRisk scores login failures, resource spikes, unusual access
// times, and statistical deviation from the historical baseline.
func (c *Calculator) behavioralRisk(m *Metrics, historical Baseline) float64 {
	score := 0.0

	if m.LoginFailures != nil {
		attempts := 1
		if m.TotalLoginAttempts != nil && *m.TotalLoginAttempts > 1 {
			attempts = *m.TotalLoginAttempts
		}
		failureRate := float64(*m.LoginFailures) / float64(attempts)
		score += math.Min(failureRate*0.3, 0.3)
	}

	if m.ResourceUsageSpike {
		score += 0.15
	}
	if m.UnusualAccessTime {
		score += 0.10
	}

	if len(historical) > 0 {
		score += math.Min(statisticalDeviation(m, historical)*0.45, 0.45)
	}

	return capScore(score)
}

// hardwareRisk scores component mismatches, TPM state, firmware
// anomalies, and missing disk encryption.
func (c *Calculator) hardwareRisk(m *Metrics) float64 {
	score := 0.0

	if m.ComponentMismatch {
		score += 0.40
	}

	switch m.TPMStatus {
	case TPMCompromised:
		score += 0.35
	case TPMUnavailable:
		score += 0.15
	}

	if m.FirmwareAnomaly {
		score += 0.25
	}
	if m.DiskEncryptionDisabled {
		score += 0.20
	}

	return capScore(score)
}

// networkRisk scores blacklist status, peer risk, VPN detection, and
// geographic inconsistencies.
func (c *Calculator) networkRisk(m *Metrics, netrep *NetworkReputation) float64 {
	score := 0.0

	if netrep != nil {
		if netrep.Blacklisted {
			score += 0.40
		}
		score += netrep.PeerAverageRisk * 0.30
		if netrep.VPNDetected {
			score += 0.10
		}
	}

	if m.GeographicInconsistency {
		score += 0.20
	}

	return capScore(score)
}

// anomalyScore prefers an externally supplied ML score; otherwise each
// raised anomaly flag contributes 0.15.
func (c *Calculator) anomalyScore(m *Metrics) float64 {
	if m.MLAnomalyScore != nil {
		return *m.MLAnomalyScore
	}
	if len(m.AnomalyFlags) > 0 {
		return math.Min(float64(len(m.AnomalyFlags))*0.15, 1.0)
	}
	return 0.0
}

// statisticalDeviation averages per-metric z-scores (divided by 3,
// capped at 1) across the metrics present in both the snapshot and the
// baseline.
func statisticalDeviation(m *Metrics, historical Baseline) float64 {
	total := 0.0
	compared := 0

	for _, key := range []string{"cpu_usage", "memory_usage", "network_activity", "disk_activity"} {
		current, ok := m.numeric(key)
		if !ok {
			continue
		}
		stat, ok := historical[key]
		if !ok || stat.Stddev <= 0 {
			continue
		}
		z := math.Abs((current - stat.Mean) / stat.Stddev)
		total += math.Min(z/3.0, 1.0)
		compared++
	}

	if compared == 0 {
		return 0.0
	}
	return total / float64(compared)
}

// threatIndicators emits a tag for every component threshold crossed.
// The checks are independent, not mutually exclusive.
func threatIndicators(behavioral, hardware, network, anomaly float64) []string {
	var indicators []string
	if behavioral > 0.5 {
		indicators = append(indicators, "Abnormal behavioral patterns detected")
	}
	if hardware > 0.5 {
		indicators = append(indicators, "Hardware integrity concerns")
	}
	if network > 0.5 {
		indicators = append(indicators, "Network-based threat indicators")
	}
	if anomaly > 0.6 {
		indicators = append(indicators, "ML-detected system anomalies")
	}
	if behavioral > 0.7 {
		indicators = append(indicators, "Severe behavioral deviation from baseline")
	}
	return indicators
}

// confidence is the fraction of the five expected telemetry fields
// present, discounted by snapshot staleness.
func (c *Calculator) confidence(m *Metrics, now time.Time) float64 {
	present := 0
	if m.CPUUsage != nil {
		present++
	}
	if m.MemoryUsage != nil {
		present++
	}
	if m.TPMStatus != "" {
		present++
	}
	if m.LoginFailures != nil {
		present++
	}
	if m.Timestamp != nil {
		present++
	}

	confidence := float64(present) / 5.0

	if m.Timestamp != nil {
		age := now.Sub(*m.Timestamp)
		switch {
		case age < time.Hour:
			// full confidence retained
		case age < 24*time.Hour:
			confidence *= 0.8
		default:
			confidence *= 0.5
		}
	}

	return capScore(confidence)
}

func capScore(v float64) float64 {
	return math.Min(v, 1.0)
}
