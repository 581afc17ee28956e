// Package memstore provides an in-memory implementation of triage.Store.
// Suitable for dev/testing.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/courier/internal/triage"
)

// Store holds run results in memory.
type Store struct {
	mu      sync.RWMutex
	results map[string]*triage.Result // run ID -> result
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{results: make(map[string]*triage.Result)}
}

// Get retrieves a run result by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the run result.
func (s *Store) Put(_ context.Context, r *triage.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.results[r.ID] = &cp
	return nil
}

// ListByUser returns the user's most recent runs, newest first.
func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]triage.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []triage.Result
	for _, r := range s.results {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
