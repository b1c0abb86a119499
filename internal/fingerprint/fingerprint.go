// Package fingerprint wraps an external device fingerprint generator
// with a local fallback, so callers always get a stable hash even when
// no provider is installed.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// Generator is an external fingerprint provider.
type Generator interface {
	Generate() (string, error)
}

// Service obtains device fingerprints, preferring an attached Generator
// and degrading to a hash of local system characteristics when the
// generator is missing or failing. Generator errors are logged, never
// returned.
type Service struct {
	generator Generator // nil = fallback only
	logger    *zap.Logger
}

// NewService creates a Service. generator may be nil.
func NewService(generator Generator, logger *zap.Logger) *Service {
	s := &Service{generator: generator, logger: logger}
	if generator == nil {
		logger.Info("external fingerprinting provider not available, using fallback")
	}
	return s
}

// FingerprintHash returns a stable fingerprint hash. Provider output is
// normalized to a hex digest; provider failures fall back to the local
// fingerprint.
func (s *Service) FingerprintHash() (string, error) {
	if s.generator != nil {
		data, err := s.generator.Generate()
		if err != nil {
			s.logger.Warn("fingerprint generator failed, using fallback", zap.Error(err))
		} else {
			return normalizeHash(data), nil
		}
	}
	return s.localFingerprint()
}

// Metadata reports whether the fallback path is in use.
func (s *Service) Metadata() map[string]any {
	return map[string]any{"fallback": s.generator == nil}
}

// localFingerprint derives a hash from host characteristics. It is
// stable for a given machine but weaker than a provider fingerprint.
func (s *Service) localFingerprint() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := struct {
		Node    string `json:"node"`
		System  string `json:"system"`
		Machine string `json:"machine"`
		MAC     string `json:"mac"`
	}{
		Node:    hostname,
		System:  runtime.GOOS,
		Machine: runtime.GOARCH,
		MAC:     primaryMAC(),
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("encode host info: %w", err)
	}

	sum := sha3.Sum512(raw)
	return hex.EncodeToString(sum[:]), nil
}

// primaryMAC returns the hardware address of the first non-loopback
// interface that has one, or empty.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}
	return ""
}

// normalizeHash passes through values that already look like a hex
// digest of at least 64 characters and hashes everything else.
func normalizeHash(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	if len(s) >= 64 && isHex(s) {
		return s
	}
	sum := sha3.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
