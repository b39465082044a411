package nanorelay

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nanorelay/client-go/internal/store"
)

// Snapshot is the on-disk document holding everything a client needs
// to resume: the identity's key material, the per-peer conversation
// state and the message ledger.
type Snapshot struct {
	Identity      *ExportedIdentity             `json:"identity"`
	Conversations map[string]*ConversationState `json:"conversations"`
	Messages      map[string]*StoredMessage     `json:"messages"`
}

// SaveState writes the client's identity, conversations and ledger to
// path as one JSON document, atomically and owner-readable only.
func (c *Client) SaveState(path string) error {
	c.mu.Lock()
	snap := Snapshot{
		Identity:      c.identity.Export(),
		Conversations: c.convs.snapshot(),
		Messages:      c.ledger.Export(),
	}
	c.mu.Unlock()
	return store.Save(path, &snap)
}

// LoadState restores conversations and ledger contents from a state
// file written by SaveState. A missing file is not an error; the
// client simply starts empty. A corrupt file is logged and otherwise
// treated like a missing one, so a damaged state never blocks startup.
// The file must belong to this client's identity.
func (c *Client) LoadState(path string) error {
	var snap Snapshot
	ok, err := store.Load(path, &snap)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			c.logger.Warn("state file corrupt, starting empty",
				zap.String("path", path), zap.Error(err))
			return nil
		}
		return err
	}
	if !ok {
		return nil
	}
	if snap.Identity == nil {
		c.logger.Warn("state file has no identity, starting empty", zap.String("path", path))
		return nil
	}
	saved, err := ImportIdentity(snap.Identity)
	if err != nil {
		return fmt.Errorf("state file identity: %w", err)
	}
	if saved.PublicKey() != c.PublicKey() {
		return fmt.Errorf("state file belongs to a different identity: %s", saved.PublicKey())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Conversations != nil {
		c.convs.restore(snap.Conversations)
	}
	if snap.Messages != nil {
		c.ledger.Import(snap.Messages)
	}
	return nil
}

// LoadIdentity reads just the identity out of a state file, so a
// caller can construct a client with the same keys it saved. Returns
// (nil, nil) when the file does not exist.
func LoadIdentity(path string) (*Identity, error) {
	var snap Snapshot
	ok, err := store.Load(path, &snap)
	if err != nil || !ok {
		return nil, err
	}
	if snap.Identity == nil {
		return nil, fmt.Errorf("state file %s has no identity", path)
	}
	return ImportIdentity(snap.Identity)
}
