package session

import (
	"context"
	"errors"
	"time"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// ErrNotFound is returned by Get when no live selection exists for a key.
var ErrNotFound = errors.New("session: pending selection not found")

// Key scopes a pending selection to one user within one conversation.
type Key struct {
	ConversationID string
	UserID         string
}

func (k Key) String() string {
	return k.ConversationID + "/" + k.UserID
}

// Store holds pending environment selections between the choice prompt and
// the user's reply. Writes to the same key are last-writer-wins.
type Store interface {
	// Put stores the selection, replacing any previous one for the key.
	Put(ctx context.Context, key Key, sel *protocol.PendingSelection) error
	// Get returns the selection for the key, or ErrNotFound.
	Get(ctx context.Context, key Key) (*protocol.PendingSelection, error)
	// Clear removes the selection for the key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key Key) error
	// Sweep removes selections created before the cutoff and returns how many were removed.
	Sweep(ctx context.Context, before time.Time) (int, error)
	// Close releases the backend.
	Close() error
}

// expired reports whether a selection is older than ttl. A zero ttl never expires.
func expired(sel *protocol.PendingSelection, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(sel.CreatedAt) > ttl
}
