package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nanorelay/client-go/wire"
)

// DefaultConnectTimeout bounds connection establishment and the single
// request/response exchange that follows it.
const DefaultConnectTimeout = 10 * time.Second

// Client is the relay RPC client. Every call dials a fresh TCP
// connection, writes one request, reads one response and closes.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  *net.Dialer
}

// Option configures the relay client.
type Option func(*Client)

// WithTimeout sets the per-call connection timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a relay client for the given "host:port" address.
func New(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("relay address is required")
	}

	c := &Client{
		addr:    addr,
		timeout: DefaultConnectTimeout,
		dialer:  &net.Dialer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Addr returns the configured relay address.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) roundTrip(ctx context.Context, req []byte) (*message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, c.addr)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, c.addr)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp message
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Type == typeError {
		return nil, &Error{Message: resp.Message}
	}
	return &resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SendEnvelope delivers a legacy envelope to its inbox.
func (c *Client) SendEnvelope(ctx context.Context, env *wire.Envelope) error {
	req, err := encodeRequest(typeSendMessage, func(m *message) error {
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope: %w", err)
		}
		m.Envelope = raw
		return nil
	})
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Type != typeSuccess {
		return unexpectedResponse(resp.Type)
	}
	return nil
}

// SendQuantumEnvelope delivers a mode-tagged envelope to its inbox.
func (c *Client) SendQuantumEnvelope(ctx context.Context, env *wire.QuantumEnvelope) error {
	req, err := encodeRequest(typeSendQuantumMessage, func(m *message) error {
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope: %w", err)
		}
		m.Envelope = raw
		return nil
	})
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Type != typeSuccess {
		return unexpectedResponse(resp.Type)
	}
	return nil
}

// FetchInbox retrieves and drains the legacy envelopes waiting at an
// inbox.
func (c *Client) FetchInbox(ctx context.Context, inboxID string) ([]*wire.Envelope, error) {
	resp, err := c.fetch(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if resp.Type != typeInboxMessages {
		return nil, unexpectedResponse(resp.Type)
	}

	envelopes := make([]*wire.Envelope, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		env, err := wire.DecodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// FetchQuantumInbox retrieves the envelopes waiting at an inbox in
// mode-tagged form. Legacy responses from older relays are upgraded to
// the tagged shape.
func (c *Client) FetchQuantumInbox(ctx context.Context, inboxID string) ([]*wire.QuantumEnvelope, error) {
	resp, err := c.fetch(ctx, inboxID)
	if err != nil {
		return nil, err
	}

	envelopes := make([]*wire.QuantumEnvelope, 0, len(resp.Messages))
	switch resp.Type {
	case typeQuantumInbox:
		for _, raw := range resp.Messages {
			env, err := wire.DecodeQuantumEnvelope(raw)
			if err != nil {
				return nil, err
			}
			envelopes = append(envelopes, env)
		}
	case typeInboxMessages:
		for _, raw := range resp.Messages {
			env, err := wire.DecodeEnvelope(raw)
			if err != nil {
				return nil, err
			}
			envelopes = append(envelopes, wire.FromLegacy(env))
		}
	default:
		return nil, unexpectedResponse(resp.Type)
	}
	return envelopes, nil
}

func (c *Client) fetch(ctx context.Context, inboxID string) (*message, error) {
	req, err := encodeRequest(typeFetchInbox, func(m *message) error {
		m.InboxID = inboxID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, req)
}

// PublishClaim registers a signed username claim with the relay.
func (c *Client) PublishClaim(ctx context.Context, claim *wire.UsernameClaim) error {
	req, err := encodeRequest(typePublishClaim, func(m *message) error {
		m.Claim = claim
		return nil
	})
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Type != typeSuccess {
		return unexpectedResponse(resp.Type)
	}
	return nil
}

// LookupUsername resolves a username to its claimed key bundle.
// It returns (nil, nil) when the name is unclaimed. Legacy results from
// older relays are upgraded to the unified bundle.
func (c *Client) LookupUsername(ctx context.Context, username string) (*wire.UnifiedPublicKeys, error) {
	req, err := encodeRequest(typeLookupUsername, func(m *message) error {
		m.Username = username
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case typeQuantumUsername:
		if len(resp.PublicKeys) == 0 || string(resp.PublicKeys) == "null" {
			return nil, nil
		}
		var keys wire.UnifiedPublicKeys
		if err := json.Unmarshal(resp.PublicKeys, &keys); err != nil {
			return nil, fmt.Errorf("decode key bundle: %w", err)
		}
		return &keys, nil
	case typeUsernameResult:
		if len(resp.PublicKeys) == 0 || string(resp.PublicKeys) == "null" {
			return nil, nil
		}
		var legacy wire.PublicKeys
		if err := json.Unmarshal(resp.PublicKeys, &legacy); err != nil {
			return nil, fmt.Errorf("decode key bundle: %w", err)
		}
		return wire.FromLegacyKeys(&legacy), nil
	default:
		return nil, unexpectedResponse(resp.Type)
	}
}
