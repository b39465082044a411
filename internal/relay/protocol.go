package relay

import (
	"encoding/json"

	"github.com/nanorelay/client-go/wire"
)

// Message type tags. Requests and responses share one tagged union.
const (
	typeSendMessage        = "send_message"
	typeSendQuantumMessage = "send_quantum_message"
	typeFetchInbox         = "fetch_inbox"
	typeInboxMessages      = "inbox_messages"
	typeQuantumInbox       = "quantum_inbox_messages"
	typePublishClaim       = "publish_claim"
	typeLookupUsername     = "lookup_username"
	typeUsernameResult     = "username_result"
	typeQuantumUsername    = "quantum_username_result"
	typeSuccess            = "success"
	typeError              = "error"
)

// message is the wire union. The "envelope" key carries either a legacy
// or a quantum envelope depending on the type tag, so envelope-shaped
// fields stay raw until the tag is known.
type message struct {
	Type       string              `json:"type"`
	Envelope   json.RawMessage     `json:"envelope,omitempty"`
	InboxID    string              `json:"inbox_id,omitempty"`
	Messages   []json.RawMessage   `json:"messages,omitempty"`
	Claim      *wire.UsernameClaim `json:"claim,omitempty"`
	Username   string              `json:"username,omitempty"`
	PublicKeys json.RawMessage     `json:"public_keys,omitempty"`
	Message    string              `json:"message,omitempty"`
}

func encodeRequest(typ string, fill func(*message) error) ([]byte, error) {
	req := message{Type: typ}
	if fill != nil {
		if err := fill(&req); err != nil {
			return nil, err
		}
	}
	return json.Marshal(&req)
}
