// Package assistapi exposes the email assistant over HTTP: email submission,
// run retrieval, the per-user prompt panel, labeled examples, and the
// feedback loop.
package assistapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/courier/internal/mail"
	"github.com/linnemanlabs/courier/internal/prompts"
	"github.com/linnemanlabs/courier/internal/triage"
)

// TriageService defines the business operations assistapi needs for runs.
type TriageService interface {
	Submit(ctx context.Context, userID string, em *mail.Email) (*triage.SubmitResult, error)
	Get(ctx context.Context, id string) (*triage.Result, bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]triage.Result, error)
	AddExample(ctx context.Context, userID string, em *mail.Email, label string) error
}

// PromptService defines the prompt panel operations.
type PromptService interface {
	All(ctx context.Context, userID string) (*prompts.Set, error)
	Save(ctx context.Context, userID string, set *prompts.Set) error
}

// FeedbackService runs the prompt optimizer and renders the outcome as
// markdown.
type FeedbackService interface {
	Run(ctx context.Context, userID string, conv *triage.Conversation, feedback string) string
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	prompts  PromptService
	feedback FeedbackService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, promptSvc PromptService, feedbackSvc FeedbackService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if promptSvc == nil {
		panic(xerrors.New("prompt service is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		prompts:  promptSvc,
		feedback: feedbackSvc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/emails", a.handleSubmitEmail)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/runs", a.handleListRuns)
			r.Get("/prompts", a.handleGetPrompts)
			r.Put("/prompts", a.handleSavePrompts)
			r.Post("/examples", a.handleAddExample)
			r.Post("/feedback", a.handleFeedback)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
