package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode identifies the cryptographic strength profile used for a message
// or session.
type Mode int

const (
	// ModeClassical uses X25519 key exchange, Ed25519 signatures and
	// ChaCha20-Poly1305 encryption.
	ModeClassical Mode = iota
	// ModeHybrid combines the classical algorithms with ML-KEM-768 and
	// ML-DSA-65 so that a break of either family is survivable.
	ModeHybrid
	// ModeQuantum uses ML-KEM-768 and ML-DSA-65 only.
	ModeQuantum
)

// Modes returns all defined crypto modes.
func Modes() []Mode {
	return []Mode{ModeClassical, ModeHybrid, ModeQuantum}
}

// ParseMode parses a mode name. Common aliases ("classic", "pq",
// "postquantum", "post-quantum") are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "classical", "classic":
		return ModeClassical, nil
	case "hybrid":
		return ModeHybrid, nil
	case "quantum", "postquantum", "post-quantum", "pq":
		return ModeQuantum, nil
	default:
		return ModeClassical, fmt.Errorf("invalid crypto mode %q: valid options are classical, hybrid, quantum", s)
	}
}

// String returns the canonical wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeClassical:
		return "classical"
	case ModeHybrid:
		return "hybrid"
	case ModeQuantum:
		return "quantum"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Description returns a human-readable description of the mode.
func (m Mode) Description() string {
	switch m {
	case ModeClassical:
		return "Classical cryptography using X25519 key exchange, Ed25519 signatures, and ChaCha20-Poly1305 encryption"
	case ModeHybrid:
		return "Hybrid security combining classical algorithms with post-quantum ML-KEM-768 and ML-DSA-65"
	case ModeQuantum:
		return "Pure post-quantum cryptography using ML-KEM-768 and ML-DSA-65 algorithms"
	default:
		return "unknown crypto mode"
	}
}

// SecurityLevel returns the numeric security generation; higher is
// stronger against quantum adversaries.
func (m Mode) SecurityLevel() int {
	switch m {
	case ModeHybrid:
		return 2
	case ModeQuantum:
		return 3
	default:
		return 1
	}
}

// SecurityDescription summarizes the threat coverage of the mode.
func (m Mode) SecurityDescription() string {
	switch m {
	case ModeClassical:
		return "Strong against classical attacks, vulnerable to quantum attacks"
	case ModeHybrid:
		return "Strong against both classical and quantum attacks (best security)"
	case ModeQuantum:
		return "Strong against quantum attacks, standard classical security"
	default:
		return "unknown"
	}
}

// QuantumResistant reports whether the mode resists quantum attacks.
func (m Mode) QuantumResistant() bool {
	return m == ModeHybrid || m == ModeQuantum
}

// PerformanceCost returns the relative cost of crypto operations in
// this mode, with classical as the 1.0 baseline.
func (m Mode) PerformanceCost() float64 {
	switch m {
	case ModeHybrid:
		return 1.8 // dual operations
	case ModeQuantum:
		return 1.4
	default:
		return 1.0
	}
}

// SizeOverhead returns the approximate per-message wire overhead in
// bytes relative to classical.
func (m Mode) SizeOverhead() int {
	switch m {
	case ModeHybrid:
		return 2048
	case ModeQuantum:
		return 1536
	default:
		return 0
	}
}

// CanTransitionTo reports whether switching from m to other is safe.
// Upgrades to a stronger generation are always allowed; downgrades
// never are.
func (m Mode) CanTransitionTo(other Mode) bool {
	switch {
	case m == other:
		return true
	case m == ModeClassical:
		return other == ModeHybrid || other == ModeQuantum
	case m == ModeHybrid:
		return other == ModeQuantum
	default:
		return false
	}
}

// MarshalJSON encodes the mode as its canonical wire name.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a mode from its wire name.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: crypto mode: %v", ErrDecode, err)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	*m = mode
	return nil
}
