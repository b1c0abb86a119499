package reputation

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestNetwork() *Network {
	return NewNetwork("test-net", zap.NewNop())
}

func TestRegisterParticipant_idempotent(t *testing.T) {
	n := newTestNetwork()

	if !n.RegisterParticipant("org-a") {
		t.Error("first registration should return true")
	}
	if n.RegisterParticipant("org-a") {
		t.Error("repeat registration should return false")
	}
	if !n.IsParticipant("org-a") {
		t.Error("org-a should be a participant")
	}
}

func TestSubmitThreatReport_unregisteredReporter(t *testing.T) {
	n := newTestNetwork()

	_, err := n.SubmitThreatReport("ghost-org", "dev-x", "malware", "high", "", "deadbeef")
	if !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestSubmitThreatReport_criticalDropsToDangerous(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	report, err := n.SubmitThreatReport("org-a", "dev-x", "botnet_activity", "critical", "c2 beaconing observed", "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.ReportID) != 16 {
		t.Errorf("report id length: got %d, want 16", len(report.ReportID))
	}
	if strings.ToLower(report.ReportID) != report.ReportID {
		t.Errorf("report id not lowercase hex: %q", report.ReportID)
	}

	record := n.QueryDeviceReputation("dev-x")
	if record == nil {
		t.Fatal("expected reputation record")
	}
	// Lazy init at 0.5, then a 0.40 critical penalty.
	if math.Abs(record.ReputationScore-0.10) > 1e-9 {
		t.Errorf("reputation score: got %v, want 0.10", record.ReputationScore)
	}
	if got := n.DeviceRiskLevel("dev-x"); got != RiskDangerous {
		t.Errorf("risk level: got %q, want %q", got, RiskDangerous)
	}
}

func TestReputationScore_clampedAtZero(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	for i := 0; i < 4; i++ {
		if _, err := n.SubmitThreatReport("org-a", "dev-x", "malware", "critical", "", "hash"); err != nil {
			t.Fatal(err)
		}
	}

	record := n.QueryDeviceReputation("dev-x")
	if record.ReputationScore != 0.0 {
		t.Errorf("score should clamp at 0, got %v", record.ReputationScore)
	}
	if record.ReportsCount != 4 {
		t.Errorf("reports count: got %d, want 4", record.ReportsCount)
	}
}

func TestQueryDeviceReputation_untracked(t *testing.T) {
	n := newTestNetwork()

	if record := n.QueryDeviceReputation("nobody"); record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}
	if got := n.DeviceRiskLevel("nobody"); got != RiskUnrated {
		t.Errorf("risk level: got %q, want %q", got, RiskUnrated)
	}
}

func TestDecay_recoversTowardOne(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	if _, err := n.SubmitThreatReport("org-a", "dev-x", "malware", "critical", "", "hash"); err != nil {
		t.Fatal(err)
	}

	// Same day: no decay.
	sameDay := n.QueryDeviceReputation("dev-x").ReputationScore
	if math.Abs(sameDay-0.10) > 1e-9 {
		t.Errorf("same-day score: got %v, want 0.10", sameDay)
	}

	// Ten days later: score += (1-score) * (1-0.95^10).
	clock = clock.Add(10 * 24 * time.Hour)
	want := 0.10 + (1.0-0.10)*(1.0-math.Pow(0.95, 10))
	got := n.QueryDeviceReputation("dev-x").ReputationScore
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("decayed score: got %v, want %v", got, want)
	}
	if got <= sameDay || got > 1.0 {
		t.Errorf("decay must increase score within (prev, 1]: prev=%v got=%v", sameDay, got)
	}
}

func TestDecay_monotonicAcrossQueries(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	if _, err := n.SubmitThreatReport("org-a", "dev-x", "phishing", "high", "", "hash"); err != nil {
		t.Fatal(err)
	}

	prev := n.QueryDeviceReputation("dev-x").ReputationScore
	for day := 1; day <= 30; day++ {
		clock = clock.Add(24 * time.Hour)
		score := n.QueryDeviceReputation("dev-x").ReputationScore
		if score < prev {
			t.Fatalf("day %d: score decreased from %v to %v", day, prev, score)
		}
		if score > 1.0 {
			t.Fatalf("day %d: score exceeded 1.0: %v", day, score)
		}
		prev = score
	}
}

func TestVerifyReport(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	report, err := n.SubmitThreatReport("org-a", "dev-x", "malware", "low", "", "hash")
	if err != nil {
		t.Fatal(err)
	}

	if !n.VerifyReport(report.ReportID, 2) {
		t.Error("expected verification to succeed")
	}
	if !report.Verified {
		t.Error("report should be marked verified")
	}
	if n.VerifyReport("no-such-report", 2) {
		t.Error("unknown report id should not verify")
	}
}

func TestNetworkStatistics(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")
	n.RegisterParticipant("org-b")

	reports := []struct {
		device, threatType, severity string
	}{
		{"dev-1", "malware", "critical"},
		{"dev-1", "malware", "high"},
		{"dev-2", "phishing", "medium"},
		{"dev-3", "malware", "low"},
	}
	for _, r := range reports {
		if _, err := n.SubmitThreatReport("org-a", r.device, r.threatType, r.severity, "", "hash"); err != nil {
			t.Fatal(err)
		}
	}

	stats := n.NetworkStatistics()
	if stats.TotalParticipants != 2 {
		t.Errorf("participants: got %d, want 2", stats.TotalParticipants)
	}
	if stats.TrackedDevices != 3 {
		t.Errorf("tracked devices: got %d, want 3", stats.TrackedDevices)
	}
	if stats.TotalReports != 4 {
		t.Errorf("total reports: got %d, want 4", stats.TotalReports)
	}
	if stats.SeverityBreakdown["critical"] != 1 || stats.SeverityBreakdown["low"] != 1 {
		t.Errorf("severity breakdown wrong: %+v", stats.SeverityBreakdown)
	}
	if len(stats.TopThreatTypes) == 0 || stats.TopThreatTypes[0].ThreatType != "malware" || stats.TopThreatTypes[0].Count != 3 {
		t.Errorf("top threat types wrong: %+v", stats.TopThreatTypes)
	}
}

func TestNetworkStatistics_tiesKeepFirstReportedOrder(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")

	// One report each; "zeta" reported before "alpha" must rank first
	// despite sorting after it alphabetically.
	for _, threatType := range []string{"zeta", "alpha", "mid"} {
		if _, err := n.SubmitThreatReport("org-a", "dev-1", threatType, "low", "", "hash"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := n.SubmitThreatReport("org-a", "dev-2", "mid", "low", "", "hash"); err != nil {
		t.Fatal(err)
	}

	stats := n.NetworkStatistics()
	var got []string
	for _, tally := range stats.TopThreatTypes {
		got = append(got, tally.ThreatType)
	}
	want := []string{"mid", "zeta", "alpha"}
	if len(got) != len(want) {
		t.Fatalf("top threat types: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rank %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestThreatIntelligenceSummary(t *testing.T) {
	n := newTestNetwork()
	n.RegisterParticipant("org-a")
	n.RegisterParticipant("org-b")

	if s := n.ThreatIntelligenceSummary("dev-x"); s != nil {
		t.Errorf("expected nil summary for unreported device, got %+v", s)
	}

	r1, err := n.SubmitThreatReport("org-a", "dev-x", "malware", "high", "", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.SubmitThreatReport("org-b", "dev-x", "phishing", "medium", "", "hash"); err != nil {
		t.Fatal(err)
	}
	n.VerifyReport(r1.ReportID, 2)

	summary := n.ThreatIntelligenceSummary("dev-x")
	if summary == nil {
		t.Fatal("expected summary")
	}
	if summary.TotalReports != 2 || summary.RecentReports90Days != 2 {
		t.Errorf("report counts wrong: %+v", summary)
	}
	if summary.VerifiedReports != 1 {
		t.Errorf("verified reports: got %d, want 1", summary.VerifiedReports)
	}
	if summary.DistinctReporters != 2 {
		t.Errorf("distinct reporters: got %d, want 2", summary.DistinctReporters)
	}
	if summary.Reputation == nil {
		t.Error("expected embedded reputation record")
	}
}

func TestRecordMarshalJSON_truncatesHistory(t *testing.T) {
	record := &Record{
		DeviceID:          "dev-x",
		ReputationScore:   0.123456,
		ReportsCount:      12,
		LastUpdated:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Contributors:      map[string]struct{}{"org-a": {}, "org-b": {}},
		VerificationLevel: VerificationUnverified,
	}
	for i := 0; i < 12; i++ {
		record.ThreatHistory = append(record.ThreatHistory, "malware")
	}

	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		ReputationScore  float64  `json:"reputation_score"`
		ContributorCount int      `json:"contributor_count"`
		ThreatHistory    []string `json:"threat_history"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.ReputationScore != 0.1235 {
		t.Errorf("score rounding: got %v, want 0.1235", got.ReputationScore)
	}
	if got.ContributorCount != 2 {
		t.Errorf("contributor count: got %d, want 2", got.ContributorCount)
	}
	if len(got.ThreatHistory) != 10 {
		t.Errorf("threat history length: got %d, want 10", len(got.ThreatHistory))
	}
}
