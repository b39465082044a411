package nanorelay

import "github.com/nanorelay/client-go/wire"

// Mode is the crypto strength profile applied to a message. See the
// wire package for the mode metadata (cost, overhead, transitions).
type Mode = wire.Mode

// Crypto modes, weakest to strongest.
const (
	ModeClassical = wire.ModeClassical
	ModeHybrid    = wire.ModeHybrid
	ModeQuantum   = wire.ModeQuantum
)

// Modes returns all modes in declaration order.
func Modes() []Mode { return wire.Modes() }

// ParseMode parses a mode name such as "classical" or "quantum".
func ParseMode(s string) (Mode, error) { return wire.ParseMode(s) }
