package session

import (
	"context"
	"sync"
	"time"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// MemoryStore keeps selections in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]protocol.PendingSelection
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. Selections older than ttl are
// treated as absent; a zero ttl keeps them until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]protocol.PendingSelection),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, key Key, sel *protocol.PendingSelection) error {
	cp := *sel
	cp.Apps = append([]protocol.Environment(nil), sel.Apps...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.entries[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*protocol.PendingSelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if expired(&sel, s.ttl, s.now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	return &sel, nil
}

func (s *MemoryStore) Clear(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, sel := range s.entries {
		if sel.CreatedAt.Before(before) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored selections, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
