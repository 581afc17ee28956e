// Package pgstore provides a PostgreSQL implementation of memory.Store.
// Example retrieval uses PostgreSQL full-text ranking.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/courier/internal/memory"
)

var tracer = otel.Tracer("github.com/linnemanlabs/courier/internal/memory/pgstore")

//go:embed schema.sql
var schema string

// Store persists prompts and memory items in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by the
// caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply memory schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// GetPrompt returns the stored prompt text for (userID, key).
func (s *Store) GetPrompt(ctx context.Context, userID, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "memory.pgstore.GetPrompt", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT prompt FROM user_prompts WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", false, fmt.Errorf("get prompt: %w", err)
	}
	return text, true, nil
}

// PutPrompt overwrites the prompt text for (userID, key).
func (s *Store) PutPrompt(ctx context.Context, userID, key, text string) error {
	ctx, span := tracer.Start(ctx, "memory.pgstore.PutPrompt", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_prompts (user_id, key, prompt, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, key) DO UPDATE SET prompt = $3, updated_at = now()`,
		userID, key, text,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put prompt: %w", err)
	}
	return nil
}

// PutItem upserts an item keyed by (UserID, Collection, Key).
func (s *Store) PutItem(ctx context.Context, it *memory.Item) error {
	ctx, span := tracer.Start(ctx, "memory.pgstore.PutItem", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	createdAt := it.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_items (user_id, collection, key, content, label, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, collection, key) DO UPDATE SET content = $4, label = $5`,
		it.UserID, it.Collection, it.Key, it.Content, it.Label, createdAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// SearchItems returns the user's collection ranked by full-text relevance.
func (s *Store) SearchItems(ctx context.Context, userID, collection, query string, limit int) ([]memory.Item, error) {
	ctx, span := tracer.Start(ctx, "memory.pgstore.SearchItems", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, collection, key, content, label, created_at
		 FROM memory_items
		 WHERE user_id = $1 AND collection = $2
		   AND to_tsvector('english', content || ' ' || label) @@ plainto_tsquery('english', $3)
		 ORDER BY ts_rank(to_tsvector('english', content || ' ' || label), plainto_tsquery('english', $3)) DESC,
		          created_at DESC
		 LIMIT $4`,
		userID, collection, query, limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	var out []memory.Item
	for rows.Next() {
		var it memory.Item
		if err := rows.Scan(&it.UserID, &it.Collection, &it.Key, &it.Content, &it.Label, &it.CreatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}
