package nanorelay

import (
	"time"

	"go.uber.org/zap"

	"github.com/nanorelay/client-go/adaptive"
)

const (
	defaultRelayAddr      = "127.0.0.1:7733"
	defaultConnectTimeout = 10 * time.Second
)

type clientConfig struct {
	relayAddr      string
	connectTimeout time.Duration
	mode           Mode
	modeSet        bool
	minMode        Mode
	adaptiveMode   bool
	advisorConfig  adaptive.Config
	lookahead      int
	messageTTL     time.Duration
	autoFetch      bool
	logger         *zap.Logger
}

// Option configures the client.
type Option func(*clientConfig)

// WithRelayAddress sets the relay's "host:port" address.
func WithRelayAddress(addr string) Option {
	return func(c *clientConfig) {
		c.relayAddr = addr
	}
}

// WithConnectTimeout bounds each relay call, connection establishment
// included.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.connectTimeout = d
	}
}

// WithMode fixes the crypto mode for outgoing messages. Without this
// option the client uses the identity's own mode.
func WithMode(mode Mode) Option {
	return func(c *clientConfig) {
		c.mode = mode
		c.modeSet = true
	}
}

// WithMinimumMode rejects sending or accepting messages whose mode
// cannot satisfy the given minimum.
func WithMinimumMode(mode Mode) Option {
	return func(c *clientConfig) {
		c.minMode = mode
	}
}

// WithAdaptiveMode lets the adaptive advisor pick the outgoing crypto
// mode from live telemetry instead of a fixed setting.
func WithAdaptiveMode(cfg adaptive.Config) Option {
	return func(c *clientConfig) {
		c.adaptiveMode = true
		c.advisorConfig = cfg
	}
}

// WithLookahead sets how many counter-derived inboxes are polled per
// conversation.
func WithLookahead(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.lookahead = n
		}
	}
}

// WithMessageTTL gives outgoing envelopes an expiry. Zero means
// envelopes never expire.
func WithMessageTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.messageTTL = ttl
	}
}

// WithAutoFetch starts a background poller that fetches new messages
// and delivers them to watchers.
func WithAutoFetch() Option {
	return func(c *clientConfig) {
		c.autoFetch = true
	}
}

// WithLogger sets the structured logger. The default discards logs.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}
