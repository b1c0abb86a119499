// Package devicescore maintains per-device trust profiles and computes a
// trustworthiness score from fingerprint stability, behavioral
// consistency, incident history, longevity, and geographic patterns.
package devicescore

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a device has no registered profile.
var ErrNotFound = errors.New("device not found")

// ErrNoFingerprint is returned when registration has no fingerprint hash
// and no provider is configured to derive one.
var ErrNoFingerprint = errors.New("fingerprint hash required when no fingerprint provider is configured")

// FingerprintProvider derives a fingerprint hash for registrations that
// arrive without one. *fingerprint.Service satisfies this interface.
type FingerprintProvider interface {
	FingerprintHash() (string, error)
}

// Component weights. They sum to 1.0.
const (
	weightFingerprint = 0.20
	weightBehavioral  = 0.25
	weightSecurity    = 0.25
	weightLongevity   = 0.15
	weightGeographic  = 0.15
)

// Category is a human-readable trust bucket derived from a device score.
type Category string

const (
	CategoryTrusted   Category = "trusted"
	CategoryNormal    Category = "normal"
	CategorySuspect   Category = "suspect"
	CategoryUntrusted Category = "untrusted"
)

// Breakdown holds the per-component sub-scores behind an overall score.
type Breakdown struct {
	FingerprintStability  float64 `json:"fingerprint_stability"`
	BehavioralConsistency float64 `json:"behavioral_consistency"`
	SecurityIncidents     float64 `json:"security_incidents"`
	Longevity             float64 `json:"longevity"`
	GeographicPatterns    float64 `json:"geographic_patterns"`
}

// Scorer owns the in-memory profile table and computes device trust
// scores. Safe for concurrent use.
type Scorer struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	fp       FingerprintProvider // nil = fingerprint hash must be supplied
	logger   *zap.Logger
}

// NewScorer creates a Scorer. fp may be nil; registrations must then
// always carry a fingerprint hash.
func NewScorer(fp FingerprintProvider, logger *zap.Logger) *Scorer {
	return &Scorer{
		profiles: make(map[string]*Profile),
		fp:       fp,
		logger:   logger,
	}
}

// RegisterDevice creates a profile for an unseen device or refreshes an
// existing one. Re-registration bumps LastSeen and the interaction
// counter; the counter never decreases.
func (s *Scorer) RegisterDevice(deviceID, fingerprintHash string, hardwareInfo, systemInfo map[string]string) (*Profile, error) {
	now := time.Now().UTC()

	if fingerprintHash == "" {
		if s.fp == nil {
			return nil, ErrNoFingerprint
		}
		hash, err := s.fp.FingerprintHash()
		if err != nil {
			return nil, fmt.Errorf("obtain fingerprint: %w", err)
		}
		fingerprintHash = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[deviceID]
	if ok {
		profile.LastSeen = now
		profile.InteractionCount++
	} else {
		profile = &Profile{
			DeviceID:         deviceID,
			FingerprintHash:  fingerprintHash,
			HardwareInfo:     hardwareInfo,
			SystemInfo:       systemInfo,
			FirstSeen:        now,
			LastSeen:         now,
			InteractionCount: 1,
		}
		s.profiles[deviceID] = profile
	}

	s.logger.Info("device registered",
		zap.String("device_id", deviceID),
		zap.Int("interaction_count", profile.InteractionCount),
	)
	return profile, nil
}

// GetProfile returns the profile for a device, or ErrNotFound.
func (s *Scorer) GetProfile(deviceID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", deviceID, ErrNotFound)
	}
	return profile, nil
}

// CalculateDeviceScore computes the weighted trustworthiness score and
// its component breakdown for a registered device.
func (s *Scorer) CalculateDeviceScore(deviceID string) (float64, *Breakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[deviceID]
	if !ok {
		return 0, nil, fmt.Errorf("device %q: %w", deviceID, ErrNotFound)
	}

	b := &Breakdown{
		FingerprintStability:  fingerprintStabilityScore(profile),
		BehavioralConsistency: behavioralConsistencyScore(profile),
		SecurityIncidents:     securityScore(profile),
		Longevity:             longevityScore(profile),
		GeographicPatterns:    geographicPatternScore(profile),
	}

	overall := b.FingerprintStability*weightFingerprint +
		b.BehavioralConsistency*weightBehavioral +
		b.SecurityIncidents*weightSecurity +
		b.Longevity*weightLongevity +
		b.GeographicPatterns*weightGeographic

	return overall, b, nil
}

// AddSecurityEvent appends an incident to a registered device's history.
func (s *Scorer) AddSecurityEvent(deviceID, eventType, severity, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[deviceID]
	if !ok {
		return fmt.Errorf("device %q: %w", deviceID, ErrNotFound)
	}

	profile.SecurityEvents = append(profile.SecurityEvents, SecurityEvent{
		Type:        eventType,
		Severity:    severity,
		Description: description,
		Timestamp:   time.Now().UTC(),
	})

	s.logger.Info("security event recorded",
		zap.String("device_id", deviceID),
		zap.String("event_type", eventType),
		zap.String("severity", severity),
	)
	return nil
}

// RecordLocation appends a geographic observation to a registered
// device's location history.
func (s *Scorer) RecordLocation(deviceID string, loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[deviceID]
	if !ok {
		return fmt.Errorf("device %q: %w", deviceID, ErrNotFound)
	}

	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	profile.Locations = append(profile.Locations, loc)
	return nil
}

// Categorize maps a device score to its trust category.
func Categorize(score float64) Category {
	switch {
	case score >= 0.85:
		return CategoryTrusted
	case score >= 0.65:
		return CategoryNormal
	case score >= 0.40:
		return CategorySuspect
	default:
		return CategoryUntrusted
	}
}

// fingerprintStabilityScore rates hardware configuration stability.
// Fingerprint rotation detection is not implemented yet, so the change
// count is always zero and established devices score 1.0; devices with
// fewer than three interactions get a neutral 0.5.
func fingerprintStabilityScore(p *Profile) float64 {
	if p.InteractionCount < 3 {
		return 0.5
	}

	fingerprintChanges := 0
	recentInteractions := p.InteractionCount
	if recentInteractions > 20 {
		recentInteractions = 20
	}

	stability := 1.0 - float64(fingerprintChanges)/math.Max(float64(recentInteractions), 1)
	return clamp01(stability)
}

// behavioralConsistencyScore is a placeholder heuristic: 0.6 without a
// recorded baseline, 0.7 with one. A real baseline comparison is an
// extension point on Profile.BehavioralBaseline.
func behavioralConsistencyScore(p *Profile) float64 {
	if p.BehavioralBaseline == nil {
		return 0.6
	}
	return 0.7
}

// securityScore rates incident history: the worst severity seen sets
// the impact, discounted less as the last incident recedes past 90 days.
func securityScore(p *Profile) float64 {
	if len(p.SecurityEvents) == 0 {
		return 1.0
	}

	maxImpact := 0.0
	for _, event := range p.SecurityEvents {
		impact := severityImpact(event.Severity)
		if impact > maxImpact {
			maxImpact = impact
		}
	}

	last := p.SecurityEvents[len(p.SecurityEvents)-1]
	daysSince := time.Since(last.Timestamp).Hours() / 24
	recency := math.Min(daysSince/90.0, 1.0)

	return clamp01((1.0 - maxImpact) * (0.5 + recency*0.5))
}

func severityImpact(severity string) float64 {
	switch severity {
	case "critical":
		return 0.9
	case "high":
		return 0.7
	case "medium":
		return 0.5
	default:
		return 0.2
	}
}

// longevityScore combines device age, recent activity, and interaction
// volume into a tenure score.
func longevityScore(p *Profile) float64 {
	ageDays := p.AgeDays()
	var ageScore float64
	switch {
	case ageDays < 7:
		ageScore = 0.2
	case ageDays < 30:
		ageScore = 0.5
	case ageDays < 90:
		ageScore = 0.7
	case ageDays < 365:
		ageScore = 0.85
	default:
		ageScore = 0.95
	}

	activityHours := p.LastActivityHours()
	var activityScore float64
	switch {
	case activityHours < 24:
		activityScore = 1.0
	case activityHours < 168:
		activityScore = 0.8
	case activityHours < 720:
		activityScore = 0.5
	default:
		activityScore = 0.2
	}

	consistency := math.Min(float64(p.InteractionCount)/100.0, 1.0)

	return math.Min(ageScore*0.5+activityScore*0.3+consistency*0.2, 1.0)
}

// geographicPatternScore rates the last ten observations by city
// diversity, falling back to an impossible-travel check when the device
// roams widely.
func geographicPatternScore(p *Profile) float64 {
	if len(p.Locations) == 0 {
		return 0.5
	}
	if len(p.Locations) == 1 {
		return 0.9
	}

	window := p.Locations
	if len(window) > 10 {
		window = window[len(window)-10:]
	}

	cities := make(map[string]struct{})
	for _, loc := range window {
		if loc.City != "" {
			cities[loc.City] = struct{}{}
		}
	}

	switch {
	case len(cities) == 1:
		return 0.95
	case len(cities) <= 3:
		return 0.75
	default:
		if impossibleTravel(window) {
			return 0.3
		}
		return 0.6
	}
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
