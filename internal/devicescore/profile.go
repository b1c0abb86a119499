package devicescore

import "time"

// SecurityEvent is a recorded security incident against a device.
type SecurityEvent struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"` // critical, high, medium, low
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Location is a single geographic observation of device activity.
type Location struct {
	City      string    `json:"city,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile is the mutable per-device record maintained by the Scorer.
// SecurityEvents and Locations are append-only; LastSeen never precedes
// FirstSeen and InteractionCount never decreases.
type Profile struct {
	DeviceID         string            `json:"device_id"`
	FingerprintHash  string            `json:"fingerprint_hash"`
	HardwareInfo     map[string]string `json:"hardware_info"`
	SystemInfo       map[string]string `json:"system_info"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	InteractionCount int               `json:"interaction_count"`
	SecurityEvents   []SecurityEvent   `json:"security_events"`
	Locations        []Location        `json:"geographic_locations"`

	// BehavioralBaseline is an extension point for a future baseline
	// comparison; the consistency score currently only checks presence.
	BehavioralBaseline map[string]float64 `json:"behavioral_baseline,omitempty"`
}

// AgeDays returns whole days since the device was first seen.
func (p *Profile) AgeDays() int {
	return int(time.Since(p.FirstSeen).Hours() / 24)
}

// LastActivityHours returns whole hours since the device was last seen.
func (p *Profile) LastActivityHours() int {
	return int(time.Since(p.LastSeen).Hours())
}
