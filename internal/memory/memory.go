// Package memory defines the namespaced per-user store that holds prompt
// records, labeled triage examples, and free-form agent memories.
package memory

import (
	"context"
	"time"
)

// Collections partition a user's namespace.
const (
	// CollectionExamples holds labeled emails used for few-shot triage.
	CollectionExamples = "examples"

	// CollectionMemories holds free-form notes written by the response agent.
	CollectionMemories = "memories"
)

// Item is one stored entry within a user's namespace.
type Item struct {
	UserID     string    `json:"user_id"`
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
	Content    string    `json:"content"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence interface for per-user prompts and memory items.
// Prompt records follow read-or-default-then-overwrite semantics enforced by
// the caller; the store itself is a plain namespaced get/put.
type Store interface {
	// GetPrompt returns the stored prompt text for (userID, key).
	GetPrompt(ctx context.Context, userID, key string) (string, bool, error)

	// PutPrompt overwrites the prompt text for (userID, key).
	PutPrompt(ctx context.Context, userID, key, text string) error

	// PutItem upserts an item keyed by (UserID, Collection, Key).
	PutItem(ctx context.Context, it *Item) error

	// SearchItems returns up to limit items from the user's collection
	// ranked by relevance to the query. An empty result is not an error.
	SearchItems(ctx context.Context, userID, collection, query string, limit int) ([]Item, error)
}
