package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-process append-only store.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	seq     int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendAudit(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.ID = s.seq
	e.Details = cloneDetails(e.Details)
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) QueryAudit(_ context.Context, f Filter, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if !f.Matches(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		e.Details = cloneDetails(e.Details)
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) CountAudit(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if f.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneDetails(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
