// Package reputation implements a shared threat intelligence network:
// participants submit reports against devices and query the collective
// reputation scores those reports produce. Scores decay back toward 1.0
// over report-free days.
package reputation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotParticipant is returned when a report arrives from an
// organization that never registered with the network.
var ErrNotParticipant = errors.New("reporter not registered as participant")

// decayRate governs daily reputation recovery. After n report-free
// days a score s becomes s + (1-s)*(1-0.95^n).
const decayRate = 0.95

// severityImpact is the score penalty per report severity. Unknown
// severities cost 0.10.
var severityImpact = map[string]float64{
	"critical": 0.40,
	"high":     0.25,
	"medium":   0.12,
	"low":      0.05,
}

// Broadcaster publishes accepted threat reports to downstream
// consumers. A failed broadcast never fails the submission.
type Broadcaster interface {
	BroadcastThreatReport(report *Report) error
}

// Statistics is a point-in-time summary of network activity.
type Statistics struct {
	NetworkID              string           `json:"network_id"`
	TotalParticipants      int              `json:"total_participants"`
	TrackedDevices         int              `json:"tracked_devices"`
	TotalReports           int              `json:"total_reports"`
	AverageReputationScore float64          `json:"average_reputation_score"`
	SeverityBreakdown      map[string]int   `json:"severity_breakdown"`
	TopThreatTypes         []ThreatTypeTally `json:"top_threat_types"`
}

// ThreatTypeTally pairs a threat type with its report count.
type ThreatTypeTally struct {
	ThreatType string `json:"threat_type"`
	Count      int    `json:"count"`
}

// IntelligenceSummary aggregates everything the network knows about one
// device.
type IntelligenceSummary struct {
	DeviceID              string         `json:"device_id"`
	TotalReports          int            `json:"total_reports"`
	RecentReports90Days   int            `json:"recent_reports_90_days"`
	Reputation            *Record        `json:"reputation"`
	ThreatTypes           map[string]int `json:"threat_types"`
	LatestReportTimestamp string         `json:"latest_report_timestamp"`
	VerifiedReports       int            `json:"verified_reports"`
	DistinctReporters     int            `json:"distinct_reporters"`
}

// Network is the in-memory reputation ledger. Safe for concurrent use.
type Network struct {
	networkID string
	logger    *zap.Logger

	mu            sync.RWMutex
	records       map[string]*Record
	deviceReports map[string][]*Report
	participants  map[string]struct{}
	reportHistory []*Report

	broadcaster Broadcaster // nil = broadcasting disabled

	now func() time.Time // stubbed in tests
}

// NewNetwork creates a Network with the given identifier.
func NewNetwork(networkID string, logger *zap.Logger) *Network {
	if networkID == "" {
		networkID = "default"
	}
	return &Network{
		networkID:     networkID,
		logger:        logger,
		records:       make(map[string]*Record),
		deviceReports: make(map[string][]*Report),
		participants:  make(map[string]struct{}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster attaches an outbound report publisher. Passing nil
// disables broadcasting.
func (n *Network) SetBroadcaster(b Broadcaster) {
	n.broadcaster = b
}

// NetworkID returns the network's identifier.
func (n *Network) NetworkID() string {
	return n.networkID
}

// RegisterParticipant adds an organization to the participant set.
// Returns false when the participant was already registered; that is
// not an error.
func (n *Network) RegisterParticipant(participantID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.participants[participantID]; ok {
		n.logger.Warn("participant already registered", zap.String("participant_id", participantID))
		return false
	}

	n.participants[participantID] = struct{}{}
	n.logger.Info("participant registered",
		zap.String("participant_id", participantID),
		zap.String("network_id", n.networkID),
	)
	return true
}

// IsParticipant reports whether an organization is registered.
func (n *Network) IsParticipant(participantID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.participants[participantID]
	return ok
}

// SubmitThreatReport records a threat report against a device and
// applies its severity penalty to the device's reputation. The reporter
// must be a registered participant.
func (n *Network) SubmitThreatReport(reporterID, deviceID, threatType, severity, description, evidenceHash string) (*Report, error) {
	n.mu.Lock()

	if _, ok := n.participants[reporterID]; !ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("reporter %q: %w", reporterID, ErrNotParticipant)
	}

	now := n.now()
	report := &Report{
		ReportID:     generateReportID(deviceID, reporterID, now),
		ReporterID:   reporterID,
		DeviceID:     deviceID,
		ThreatType:   threatType,
		Severity:     severity,
		Description:  description,
		EvidenceHash: evidenceHash,
		Timestamp:    now,
	}

	n.deviceReports[deviceID] = append(n.deviceReports[deviceID], report)
	n.reportHistory = append(n.reportHistory, report)
	n.applyReport(deviceID, report)

	n.mu.Unlock()

	n.logger.Info("threat report submitted",
		zap.String("device_id", deviceID),
		zap.String("reporter_id", reporterID),
		zap.String("threat_type", threatType),
		zap.String("severity", severity),
	)

	if n.broadcaster != nil {
		if err := n.broadcaster.BroadcastThreatReport(report); err != nil {
			n.logger.Warn("threat report broadcast failed",
				zap.String("report_id", report.ReportID),
				zap.Error(err),
			)
		}
	}

	return report, nil
}

// QueryDeviceReputation returns the device's reputation record after
// applying decay, or nil when the device was never reported. Decay is
// committed into the stored record; same-day repeat queries are no-ops
// because a zero whole-day delta changes nothing.
func (n *Network) QueryDeviceReputation(deviceID string) *Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queryLocked(deviceID)
}

func (n *Network) queryLocked(deviceID string) *Record {
	record, ok := n.records[deviceID]
	if !ok {
		return nil
	}

	days := int(n.now().Sub(record.LastUpdated).Hours() / 24)
	if days > 0 {
		factor := math.Pow(decayRate, float64(days))
		record.ReputationScore += (1.0 - record.ReputationScore) * (1.0 - factor)
	}

	return record
}

// DeviceRiskLevel maps a device's decayed reputation score to a
// human-readable level.
func (n *Network) DeviceRiskLevel(deviceID string) string {
	record := n.QueryDeviceReputation(deviceID)
	if record == nil {
		return RiskUnrated
	}

	switch score := record.ReputationScore; {
	case score >= 0.85:
		return RiskTrustworthy
	case score >= 0.60:
		return RiskNeutral
	case score >= 0.35:
		return RiskSuspicious
	default:
		return RiskDangerous
	}
}

// VerifyReport marks a report as verified and returns true on the
// first match. The threshold parameter is accepted for interface
// stability but not yet enforced; a single call verifies
// unconditionally.
func (n *Network) VerifyReport(reportID string, threshold int) bool {
	_ = threshold

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, reports := range n.deviceReports {
		for _, report := range reports {
			if report.ReportID == reportID {
				report.Verified = true
				n.logger.Info("report verified", zap.String("report_id", reportID))
				return true
			}
		}
	}
	return false
}

// NetworkStatistics summarizes the network's current state.
func (n *Network) NetworkStatistics() *Statistics {
	n.mu.RLock()
	defer n.mu.RUnlock()

	severity := map[string]int{
		"critical": 0,
		"high":     0,
		"medium":   0,
		"low":      0,
	}
	threatTypes := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, report := range n.reportHistory {
		if _, ok := severity[report.Severity]; ok {
			severity[report.Severity]++
		}
		if _, ok := threatTypes[report.ThreatType]; !ok {
			firstSeen[report.ThreatType] = i
		}
		threatTypes[report.ThreatType]++
	}

	avg := 0.0
	if len(n.records) > 0 {
		total := 0.0
		for _, record := range n.records {
			total += record.ReputationScore
		}
		avg = total / float64(len(n.records))
	}

	return &Statistics{
		NetworkID:              n.networkID,
		TotalParticipants:      len(n.participants),
		TrackedDevices:         len(n.records),
		TotalReports:           len(n.reportHistory),
		AverageReputationScore: round4(avg),
		SeverityBreakdown:      severity,
		TopThreatTypes:         topThreatTypes(threatTypes, firstSeen, 5),
	}
}

// ThreatIntelligenceSummary aggregates all intelligence on a device, or
// returns nil when no reports exist.
func (n *Network) ThreatIntelligenceSummary(deviceID string) *IntelligenceSummary {
	n.mu.Lock()
	defer n.mu.Unlock()

	reports := n.deviceReports[deviceID]
	if len(reports) == 0 {
		return nil
	}

	reputation := n.queryLocked(deviceID)

	now := n.now()
	recent := 0
	verified := 0
	threatTypes := make(map[string]int)
	reporters := make(map[string]struct{})
	latest := reports[0].Timestamp
	for _, report := range reports {
		if now.Sub(report.Timestamp).Hours()/24 < 90 {
			recent++
		}
		if report.Verified {
			verified++
		}
		threatTypes[report.ThreatType]++
		reporters[report.ReporterID] = struct{}{}
		if report.Timestamp.After(latest) {
			latest = report.Timestamp
		}
	}

	return &IntelligenceSummary{
		DeviceID:              deviceID,
		TotalReports:          len(reports),
		RecentReports90Days:   recent,
		Reputation:            reputation,
		ThreatTypes:           threatTypes,
		LatestReportTimestamp: latest.Format(time.RFC3339),
		VerifiedReports:       verified,
		DistinctReporters:     len(reporters),
	}
}

// applyReport charges a report's severity penalty against the device's
// record, creating the record at the neutral 0.5 starting score first
// if needed. Caller holds the write lock.
func (n *Network) applyReport(deviceID string, report *Report) {
	record, ok := n.records[deviceID]
	if !ok {
		record = &Record{
			DeviceID:          deviceID,
			ReputationScore:   0.5,
			Contributors:      make(map[string]struct{}),
			VerificationLevel: VerificationUnverified,
		}
		n.records[deviceID] = record
	}

	impact, ok := severityImpact[report.Severity]
	if !ok {
		impact = 0.10
	}
	record.ReputationScore = math.Max(0.0, record.ReputationScore-impact)

	record.ReportsCount++
	record.LastUpdated = n.now()
	record.Contributors[report.ReporterID] = struct{}{}
	record.ThreatHistory = append(record.ThreatHistory, report.ThreatType)

	if report.Verified {
		record.VerificationLevel = VerificationVerified
	}
}

// topThreatTypes returns the k most reported threat types. Ties are
// broken by the order each type first appeared in the report history.
func topThreatTypes(counts, firstSeen map[string]int, k int) []ThreatTypeTally {
	tallies := make([]ThreatTypeTally, 0, len(counts))
	for threatType, count := range counts {
		tallies = append(tallies, ThreatTypeTally{ThreatType: threatType, Count: count})
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Count != tallies[j].Count {
			return tallies[i].Count > tallies[j].Count
		}
		return firstSeen[tallies[i].ThreatType] < firstSeen[tallies[j].ThreatType]
	})
	if len(tallies) > k {
		tallies = tallies[:k]
	}
	return tallies
}

func generateReportID(deviceID, reporterID string, ts time.Time) string {
	content := fmt.Sprintf("%s:%s:%s", deviceID, reporterID, ts.Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
