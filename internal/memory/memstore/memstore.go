// Package memstore provides an in-memory implementation of memory.Store.
// Ranking is lexical token overlap. Suitable for dev/testing.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/courier/internal/memory"
)

type promptKey struct {
	userID string
	key    string
}

type itemKey struct {
	userID     string
	collection string
	key        string
}

// Store holds prompts and memory items in memory.
type Store struct {
	mu      sync.RWMutex
	prompts map[promptKey]string
	items   map[itemKey]*memory.Item
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		prompts: make(map[promptKey]string),
		items:   make(map[itemKey]*memory.Item),
	}
}

// GetPrompt returns the stored prompt text for (userID, key).
func (s *Store) GetPrompt(_ context.Context, userID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.prompts[promptKey{userID, key}]
	return text, ok, nil
}

// PutPrompt overwrites the prompt text for (userID, key).
func (s *Store) PutPrompt(_ context.Context, userID, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[promptKey{userID, key}] = text
	return nil
}

// PutItem upserts a copy of the item keyed by (UserID, Collection, Key).
func (s *Store) PutItem(_ context.Context, it *memory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *it
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.items[itemKey{it.UserID, it.Collection, it.Key}] = &cp
	return nil
}

// SearchItems ranks the user's collection by token overlap with the query.
// Items that share no tokens with the query are excluded.
func (s *Store) SearchItems(_ context.Context, userID, collection, query string, limit int) ([]memory.Item, error) {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		item  memory.Item
		score int
	}
	var matches []scored
	for k, it := range s.items {
		if k.userID != userID || k.collection != collection {
			continue
		}
		sc := overlap(terms, it.Content+" "+it.Label)
		if sc == 0 {
			continue
		}
		matches = append(matches, scored{item: *it, score: sc})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].item.CreatedAt.After(matches[j].item.CreatedAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]memory.Item, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.item)
	}
	return out, nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!?\"'()[]{}<>")
		if len(f) < 3 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func overlap(terms map[string]struct{}, text string) int {
	var n int
	for tok := range tokenize(text) {
		if _, ok := terms[tok]; ok {
			n++
		}
	}
	return n
}
