package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/courier/internal/mail"
	"github.com/linnemanlabs/courier/internal/memory"
	"github.com/linnemanlabs/courier/internal/prompts"
	"github.com/linnemanlabs/courier/internal/tools"
)

// MaxFewShot caps how many retrieved examples are folded into the triage
// system prompt.
const MaxFewShot = 5

// Notifier delivers notify-classified results to an external channel.
type Notifier interface {
	Send(ctx context.Context, result *Result) error
}

// SubmitResult is the outcome of submitting an email for processing.
type SubmitResult struct {
	ID string
}

// Service is the business boundary for email processing. It owns the run
// lifecycle, the triage branch, and async dispatch.
type Service struct {
	store    Store
	memory   memory.Store
	manager  *prompts.Manager
	router   *Router
	engine   *Engine
	notifier Notifier
	metrics  *Metrics
	logger   log.Logger
	profile  prompts.Profile
}

// NewService creates a new triage service. notifier and metrics may be nil.
func NewService(store Store, mem memory.Store, manager *prompts.Manager, router *Router, engine *Engine, notifier Notifier, metrics *Metrics, logger log.Logger, profile prompts.Profile) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		memory:   mem,
		manager:  manager,
		router:   router,
		engine:   engine,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		profile:  profile,
	}
}

// Submit accepts an email for processing and kicks off the run
// asynchronously. The returned ID is used to poll for the result.
func (s *Service) Submit(ctx context.Context, userID string, em *mail.Email) (*SubmitResult, error) {
	if userID == "" {
		s.countSubmit("rejected")
		return nil, fmt.Errorf("user id is required")
	}
	if err := em.Validate(); err != nil {
		s.countSubmit("rejected")
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	id := ulid.Make().String()
	result := &Result{
		ID:        id,
		UserID:    userID,
		Email:     *em,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, result); err != nil {
		s.countSubmit("error")
		return nil, fmt.Errorf("persist run: %w", err)
	}
	s.countSubmit("accepted")

	// run detached - the HTTP request returns immediately and the result is
	// polled by ID.
	go s.run(context.WithoutCancel(ctx), id, userID, em)

	return &SubmitResult{ID: id}, nil
}

// Get retrieves a run result by ID.
func (s *Service) Get(ctx context.Context, id string) (*Result, bool, error) {
	return s.store.Get(ctx, id)
}

// ListByUser retrieves the user's most recent runs.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Result, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// AddExample stores a labeled email for future few-shot triage retrieval.
func (s *Service) AddExample(ctx context.Context, userID string, em *mail.Email, label string) error {
	class, err := ParseClassification(label)
	if err != nil {
		return err
	}
	if err := em.Validate(); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	content, err := em.MarshalExample()
	if err != nil {
		return err
	}
	return s.memory.PutItem(ctx, &memory.Item{
		UserID:     userID,
		Collection: memory.CollectionExamples,
		Key:        ulid.Make().String(),
		Content:    content,
		Label:      string(class),
	})
}

func (s *Service) run(ctx context.Context, id, userID string, em *mail.Email) {
	start := time.Now()
	L := s.logger.With("run_id", id, "user_id", userID, "from", em.Author, "subject", em.Subject)

	result, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch run for processing")
		return
	}

	result.Status = StatusInProgress
	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	dec, err := s.classify(ctx, userID, em)
	if err != nil {
		L.Error(ctx, err, "triage failed")
		s.finish(ctx, L, result, StatusFailed, start, err)
		return
	}

	result.Classification = dec.Classification
	result.Reasoning = dec.Reasoning
	if s.metrics != nil {
		s.metrics.ClassificationsTotal.WithLabelValues(string(dec.Classification)).Inc()
	}
	L.Info(ctx, "email triaged", "classification", dec.Classification)

	switch dec.Classification {
	case ClassRespond:
		rr, err := s.respond(ctx, id, userID, em)
		if err != nil {
			s.finish(ctx, L, result, StatusFailed, start, err)
			return
		}
		result.Reply = rr.Reply
		result.ToolsUsed = rr.ToolsUsed
		result.Conversation = rr.Conversation
		result.Model = rr.Model
		result.Error = rr.Error
		result.InputTokens += rr.InputTokens
		result.OutputTokens += rr.OutputTokens
		result.ToolCalls = rr.ToolCalls
		s.finish(ctx, L, result, rr.Status, start, nil)

	case ClassNotify:
		if s.notifier != nil {
			// best effort - a notification failure does not fail the run
			if err := s.notifier.Send(ctx, result); err != nil {
				L.Error(ctx, err, "notification failed")
			}
		}
		s.finish(ctx, L, result, StatusComplete, start, nil)

	case ClassIgnore:
		s.finish(ctx, L, result, StatusComplete, start, nil)
	}
}

// classify builds the triage prompts from the user's rules, profile, and
// similar past examples, then asks the router for a decision.
func (s *Service) classify(ctx context.Context, userID string, em *mail.Email) (*Decision, error) {
	examples, err := s.memory.SearchItems(ctx, userID, memory.CollectionExamples, em.SearchText(), MaxFewShot)
	if err != nil {
		// degraded triage beats no triage
		s.logger.Error(ctx, err, "example retrieval failed", "user_id", userID)
		examples = nil
	}

	rules, err := s.manager.TriageRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load triage rules: %w", err)
	}

	system := prompts.TriageSystem(s.profile, rules, prompts.FormatFewShot(examples))
	user := prompts.TriageUser(em)
	return s.router.Classify(ctx, system, user)
}

// respond runs the tool-using response agent with a per-user tool registry
// and a synthetic instruction message carrying the email.
func (s *Service) respond(ctx context.Context, runID, userID string, em *mail.Email) (*RunResult, error) {
	instructions, err := s.manager.AgentInstructions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load agent instructions: %w", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.SendEmail{})
	registry.Register(tools.ScheduleMeeting{})
	registry.Register(tools.CheckAvailability{})
	registry.Register(tools.NewSearchMemory(s.memory, userID))
	registry.Register(tools.NewManageMemory(s.memory, userID))

	system := prompts.AgentSystem(s.profile, instructions)
	initial := []Message{{
		Role: "user",
		Content: []ContentBlock{{
			Type: "text",
			Text: "Respond to the email:\n\n" + em.String(),
		}},
	}}

	return s.engine.Run(ctx, runID, registry, system, initial), nil
}

func (s *Service) finish(ctx context.Context, L log.Logger, result *Result, status Status, start time.Time, runErr error) {
	result.Status = status
	result.CompletedAt = time.Now()
	result.Duration = time.Since(start).Seconds()
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to persist run result")
	}
	if s.metrics != nil {
		s.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	}
	L.Info(ctx, "run finished",
		"status", status,
		"classification", result.Classification,
		"duration", result.Duration,
		"tool_calls", result.ToolCalls,
	)
}

func (s *Service) countSubmit(outcome string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(outcome).Inc()
	}
}
