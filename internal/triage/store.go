package triage

import "context"

// Store is the persistence interface for triage run results.
type Store interface {
	Get(ctx context.Context, id string) (*Result, bool, error)
	Put(ctx context.Context, result *Result) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Result, error)
}
