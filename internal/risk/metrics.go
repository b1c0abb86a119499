package risk

import "time"

// TPM health states reported in device telemetry.
const (
	TPMHealthy     = "healthy"
	TPMCompromised = "compromised"
	TPMUnavailable = "unavailable"
)

// Metrics is a snapshot of device telemetry submitted for assessment.
// Pointer fields distinguish "not reported" from a zero measurement;
// absent fields contribute nothing to the score.
type Metrics struct {
	CPUUsage           *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage        *float64 `json:"memory_usage,omitempty"`
	NetworkActivity    *float64 `json:"network_activity,omitempty"`
	DiskActivity       *float64 `json:"disk_activity,omitempty"`
	LoginFailures      *int     `json:"login_failures,omitempty"`
	TotalLoginAttempts *int     `json:"total_login_attempts,omitempty"`

	TPMStatus               string `json:"tpm_status,omitempty"`
	ResourceUsageSpike      bool   `json:"resource_usage_spike,omitempty"`
	UnusualAccessTime       bool   `json:"unusual_access_time,omitempty"`
	ComponentMismatch       bool   `json:"component_mismatch,omitempty"`
	FirmwareAnomaly         bool   `json:"firmware_anomaly,omitempty"`
	DiskEncryptionDisabled  bool   `json:"disk_encryption_disabled,omitempty"`
	GeographicInconsistency bool   `json:"geographic_inconsistency,omitempty"`

	MLAnomalyScore *float64 `json:"ml_anomaly_score,omitempty"`
	AnomalyFlags   []string `json:"anomaly_flags,omitempty"`

	Timestamp       *time.Time `json:"timestamp,omitempty"`
	FingerprintHash string     `json:"fingerprint_hash,omitempty"`
}

// numeric returns the named continuous metric and whether it was reported.
// Names match the historical baseline keys.
func (m *Metrics) numeric(name string) (float64, bool) {
	var p *float64
	switch name {
	case "cpu_usage":
		p = m.CPUUsage
	case "memory_usage":
		p = m.MemoryUsage
	case "network_activity":
		p = m.NetworkActivity
	case "disk_activity":
		p = m.DiskActivity
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Stat is the historical mean and standard deviation of one metric.
type Stat struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// Baseline holds per-metric historical statistics keyed by metric name
// (cpu_usage, memory_usage, network_activity, disk_activity).
type Baseline map[string]Stat

// NetworkReputation is the reputation context supplied by the threat
// intelligence network for the device under assessment.
type NetworkReputation struct {
	Blacklisted     bool    `json:"is_blacklisted"`
	PeerAverageRisk float64 `json:"peer_average_risk"`
	VPNDetected     bool    `json:"is_vpn_detected"`
}
