package assistapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/mail"
	"github.com/linnemanlabs/courier/internal/prompts"
	"github.com/linnemanlabs/courier/internal/triage"
)

type mockTriageService struct {
	submitID  string
	submitErr error
	results   map[string]*triage.Result
	getErr    error
	listed    []triage.Result
	listErr   error
	examples  []string
	exErr     error

	lastSubmitUser string
	lastListLimit  int
}

func (m *mockTriageService) Submit(_ context.Context, userID string, _ *mail.Email) (*triage.SubmitResult, error) {
	m.lastSubmitUser = userID
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &triage.SubmitResult{ID: m.submitID}, nil
}

func (m *mockTriageService) Get(_ context.Context, id string) (*triage.Result, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	r, ok := m.results[id]
	return r, ok, nil
}

func (m *mockTriageService) ListByUser(_ context.Context, _ string, limit int) ([]triage.Result, error) {
	m.lastListLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listed, nil
}

func (m *mockTriageService) AddExample(_ context.Context, _ string, _ *mail.Email, label string) error {
	if m.exErr != nil {
		return m.exErr
	}
	m.examples = append(m.examples, label)
	return nil
}

type mockPromptService struct {
	set     *prompts.Set
	allErr  error
	saved   *prompts.Set
	saveErr error
}

func (m *mockPromptService) All(_ context.Context, _ string) (*prompts.Set, error) {
	if m.allErr != nil {
		return nil, m.allErr
	}
	return m.set, nil
}

func (m *mockPromptService) Save(_ context.Context, _ string, set *prompts.Set) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = set
	return nil
}

type mockFeedbackService struct {
	message  string
	lastConv *triage.Conversation
	lastText string
}

func (m *mockFeedbackService) Run(_ context.Context, _ string, conv *triage.Conversation, feedback string) string {
	m.lastConv = conv
	m.lastText = feedback
	return m.message
}

func newTestRouter(t *testing.T, svc *mockTriageService, ps *mockPromptService, fs *mockFeedbackService) chi.Router {
	t.Helper()
	if svc == nil {
		svc = &mockTriageService{submitID: "01JN000"}
	}
	if ps == nil {
		ps = &mockPromptService{set: &prompts.Set{
			AgentInstructions: "a", TriageIgnore: "b", TriageNotify: "c", TriageRespond: "d",
		}}
	}
	if fs == nil {
		fs = &mockFeedbackService{message: "ok"}
	}
	api := New(nil, svc, ps, fs)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &mockTriageService{}, &mockPromptService{}, &mockFeedbackService{})
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &mockTriageService{}, &mockPromptService{}, &mockFeedbackService{})
	if api.logger == nil {
		t.Fatal("New left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil triage service")
		}
	}()
	New(nil, nil, &mockPromptService{}, &mockFeedbackService{})
}

func TestNew_NilPromptService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil prompt service")
		}
	}()
	New(nil, &mockTriageService{}, nil, &mockFeedbackService{})
}

// Routing

func TestRegisterRoutes_Emails(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil, nil, nil)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"POST valid submission", http.MethodPost, `{"user_id":"u-1","email":{"author":"alice@example.com","to":"john@example.com","subject":"hi","email_thread":"hello"}}`, http.StatusAccepted},
		{"POST invalid JSON", http.MethodPost, `{bad`, http.StatusBadRequest},
		{"GET not allowed", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"PUT not allowed", http.MethodPut, "", http.StatusMethodNotAllowed},
		{"DELETE not allowed", http.MethodDelete, "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/v1/emails", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s /api/v1/emails = %d, want %d", tt.method, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil, nil, nil)

	paths := []string{
		"/",
		"/api/v1",
		"/api/v2/emails",
		"/api/v1/runs",
		"/api/v1/users/u-1",
		"/api/v1/unknown",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusNotFound)
			}
		})
	}
}

// Email submission

func TestHandleSubmitEmail_ReturnsID(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{submitID: "01JNABC"}
	r := newTestRouter(t, svc, nil, nil)

	body := `{"user_id":"u-1","email":{"author":"alice@example.com","to":"john@example.com","subject":"sync","email_thread":"can we meet?"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "01JNABC" {
		t.Errorf("id = %q, want 01JNABC", resp["id"])
	}
	if svc.lastSubmitUser != "u-1" {
		t.Errorf("submitted user = %q, want u-1", svc.lastSubmitUser)
	}
}

func TestHandleSubmitEmail_RejectedSubmission(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{submitErr: errors.New("user id is required")}
	r := newTestRouter(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", strings.NewReader(`{"email":{}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Run retrieval

func TestHandleGetRun_Found(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{results: map[string]*triage.Result{
		"01JNRUN": {ID: "01JNRUN", UserID: "u-1", Status: triage.StatusComplete, Classification: triage.ClassIgnore},
	}}
	r := newTestRouter(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/01JNRUN", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got triage.Result
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "01JNRUN" {
		t.Errorf("id = %q, want 01JNRUN", got.ID)
	}
	if got.Classification != triage.ClassIgnore {
		t.Errorf("classification = %q, want ignore", got.Classification)
	}
}

func TestHandleGetRun_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockTriageService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetRun_StoreError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockTriageService{getErr: errors.New("db down")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/01JNRUN", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// Run listing

func TestHandleListRuns_DefaultLimit(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{listed: []triage.Result{{ID: "r-1"}, {ID: "r-2"}}}
	r := newTestRouter(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/runs", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.lastListLimit != defaultListLimit {
		t.Errorf("limit = %d, want default %d", svc.lastListLimit, defaultListLimit)
	}

	var resp struct {
		Runs []triage.Result `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Errorf("runs = %d, want 2", len(resp.Runs))
	}
}

func TestHandleListRuns_LimitValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"max limit", "?limit=100", http.StatusOK, 100},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"negative", "?limit=-3", http.StatusBadRequest, 0},
		{"too large", "?limit=101", http.StatusBadRequest, 0},
		{"not a number", "?limit=lots", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockTriageService{}
			r := newTestRouter(t, svc, nil, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/runs"+tt.query, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && svc.lastListLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", svc.lastListLimit, tt.wantLimit)
			}
		})
	}
}

// Prompt panel

func TestHandleGetPrompts(t *testing.T) {
	t.Parallel()

	ps := &mockPromptService{set: &prompts.Set{
		AgentInstructions: "be terse",
		TriageIgnore:      "ignore newsletters",
		TriageNotify:      "notify on deadlines",
		TriageRespond:     "respond to direct questions",
	}}
	r := newTestRouter(t, nil, ps, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u-1/prompts", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got prompts.Set
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TriageIgnore != "ignore newsletters" {
		t.Errorf("triage_ignore = %q, want stored value", got.TriageIgnore)
	}
}

func TestHandleSavePrompts_Valid(t *testing.T) {
	t.Parallel()

	ps := &mockPromptService{}
	r := newTestRouter(t, nil, ps, nil)

	body := `{"agent_instructions":"a","triage_ignore":"b","triage_notify":"c","triage_respond":"d"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/u-1/prompts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ps.saved == nil || ps.saved.TriageNotify != "c" {
		t.Errorf("saved = %+v, want full set persisted", ps.saved)
	}
}

func TestHandleSavePrompts_MissingField(t *testing.T) {
	t.Parallel()

	ps := &mockPromptService{}
	r := newTestRouter(t, nil, ps, nil)

	// triage_respond is missing
	body := `{"agent_instructions":"a","triage_ignore":"b","triage_notify":"c"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/u-1/prompts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ps.saved != nil {
		t.Error("partial set must not be persisted")
	}
}

// Examples

func TestHandleAddExample(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{submitID: "x"}
	r := newTestRouter(t, svc, nil, nil)

	body := `{"email":{"author":"alice@example.com","to":"john@example.com","subject":"fyi","email_thread":"newsletter"},"label":"ignore"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/examples", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if len(svc.examples) != 1 || svc.examples[0] != "ignore" {
		t.Errorf("examples = %v, want [ignore]", svc.examples)
	}
}

func TestHandleAddExample_Rejected(t *testing.T) {
	t.Parallel()

	svc := &mockTriageService{exErr: errors.New("invalid classification")}
	r := newTestRouter(t, svc, nil, nil)

	body := `{"email":{},"label":"archive"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/examples", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Feedback

func TestHandleFeedback_WithoutRun(t *testing.T) {
	t.Parallel()

	fs := &mockFeedbackService{message: "## Prompt Updates\n\n✅ Updated: **triage-ignore**"}
	r := newTestRouter(t, nil, nil, fs)

	body := `{"feedback":"stop notifying me about newsletters"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp feedbackResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Message, "Prompt Updates") {
		t.Errorf("message = %q, want optimizer markdown passed through", resp.Message)
	}
	if fs.lastConv != nil {
		t.Error("expected nil conversation when no run_id given")
	}
	if fs.lastText != "stop notifying me about newsletters" {
		t.Errorf("feedback = %q, want raw feedback forwarded", fs.lastText)
	}
}

func TestHandleFeedback_WithRunConversation(t *testing.T) {
	t.Parallel()

	conv := &triage.Conversation{Turns: []triage.Turn{{Role: "user"}}}
	svc := &mockTriageService{results: map[string]*triage.Result{
		"01JNRUN": {ID: "01JNRUN", Conversation: conv},
	}}
	fs := &mockFeedbackService{message: "ok"}
	r := newTestRouter(t, svc, nil, fs)

	body := `{"run_id":"01JNRUN","feedback":"the reply was too formal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if fs.lastConv != conv {
		t.Error("expected run conversation forwarded to optimizer")
	}
}

func TestHandleFeedback_RunNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockTriageService{}, nil, nil)

	body := `{"run_id":"missing","feedback":"whatever"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleFeedback_BlankFeedback(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, nil, nil, nil)

	body := `{"feedback":"   "}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Fuzz

func FuzzEmailSubmission(f *testing.F) {
	svc := &mockTriageService{submitID: "01JN000"}
	api := New(nil, svc, &mockPromptService{set: &prompts.Set{}}, &mockFeedbackService{})
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []string{
		``,
		`{}`,
		`{"user_id":"u-1","email":{"author":"a@b.c","to":"d@e.f","subject":"s","email_thread":"t"}}`,
		`{invalid json`,
		"\x00\x01\x02\xff\xfe",
		strings.Repeat("a", 10000),
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	f.Fuzz(func(t *testing.T, body []byte) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /api/v1/emails with body len=%d = %d, want 202 or 400", len(body), rec.Code)
		}
	})
}
