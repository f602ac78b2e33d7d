package journal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the journal in memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append assigns sequence and chain hashes, then stores the entry.
func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Seq = uint64(len(s.entries)) + 1
	e.PrevHash = ""
	if n := len(s.entries); n > 0 {
		e.PrevHash = s.entries[n-1].Hash
	}
	e.Hash = HashEntry(e)

	stored := *e
	s.entries = append(s.entries, &stored)
	return nil
}

// Read returns entries with Seq >= fromSeq in order.
func (s *MemoryStore) Read(ctx context.Context, fromSeq uint64) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Seq >= fromSeq {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Head returns the latest entry, or nil for an empty journal.
func (s *MemoryStore) Head(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	copied := *s.entries[len(s.entries)-1]
	return &copied, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
