package history

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{attempts: make(map[string]Attempt)}
}

// Save implements [Store].
func (s *MemStore) Save(_ context.Context, a Attempt) error {
	if err := validate(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID] = a
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, learnerID string, limit int) ([]Attempt, error) {
	s.mu.RLock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.LearnerID == learnerID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Attempt) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Patterns implements [Store].
func (s *MemStore) Patterns(_ context.Context, learnerID string, since time.Time) ([]PatternCount, error) {
	totals := make(map[string]int)
	s.mu.RLock()
	for _, a := range s.attempts {
		if a.LearnerID != learnerID || a.CreatedAt.Before(since) {
			continue
		}
		for p, c := range a.Patterns {
			totals[p] += c
		}
	}
	s.mu.RUnlock()

	out := make([]PatternCount, 0, len(totals))
	for p, c := range totals {
		out = append(out, PatternCount{Pattern: p, Count: c})
	}
	sortPatterns(out)
	return out, nil
}
