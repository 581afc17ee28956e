// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/courier/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/courier/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists run results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by the
// caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply run schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const runColumns = `id, user_id, email, status, classification, reasoning, reply,
	tools_used, conversation, model, error, created_at, completed_at, duration_s,
	input_tokens, output_tokens, tool_calls`

// Get retrieves a run result by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM assistant_runs WHERE id = $1`
	r, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Put inserts or updates a run result.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	emailJSON, err := json.Marshal(r.Email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	var convJSON []byte
	if r.Conversation != nil {
		convJSON, err = json.Marshal(r.Conversation)
		if err != nil {
			return fmt.Errorf("marshal conversation: %w", err)
		}
	}

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assistant_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		   status = $4, classification = $5, reasoning = $6, reply = $7,
		   tools_used = $8, conversation = $9, model = $10, error = $11,
		   completed_at = $13, duration_s = $14, input_tokens = $15,
		   output_tokens = $16, tool_calls = $17`,
		r.ID, r.UserID, emailJSON, r.Status, r.Classification, r.Reasoning, r.Reply,
		r.ToolsUsed, convJSON, r.Model, r.Error, r.CreatedAt, completedAt, r.Duration,
		r.InputTokens, r.OutputTokens, r.ToolCalls,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent runs, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]triage.Result, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM assistant_runs
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []triage.Result
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*triage.Result, error) {
	var (
		r           triage.Result
		emailJSON   []byte
		convJSON    []byte
		completedAt *time.Time
	)
	err := row.Scan(
		&r.ID, &r.UserID, &emailJSON, &r.Status, &r.Classification, &r.Reasoning,
		&r.Reply, &r.ToolsUsed, &convJSON, &r.Model, &r.Error, &r.CreatedAt,
		&completedAt, &r.Duration, &r.InputTokens, &r.OutputTokens, &r.ToolCalls,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(emailJSON, &r.Email); err != nil {
		return nil, fmt.Errorf("unmarshal email: %w", err)
	}
	if len(convJSON) > 0 {
		var conv triage.Conversation
		if err := json.Unmarshal(convJSON, &conv); err != nil {
			return nil, fmt.Errorf("unmarshal conversation: %w", err)
		}
		r.Conversation = &conv
	}
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	return &r, nil
}
