package assistapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/courier/internal/prompts"
	"github.com/linnemanlabs/courier/internal/triage"
)

func (a *API) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	set, err := a.prompts.All(r.Context(), userID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load prompts", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, set)
}

func (a *API) handleSavePrompts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var set prompts.Set
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if set.AgentInstructions == "" || set.TriageIgnore == "" || set.TriageNotify == "" || set.TriageRespond == "" {
		http.Error(w, `{"error":"all four prompts are required"}`, http.StatusBadRequest)
		return
	}

	if err := a.prompts.Save(r.Context(), userID, &set); err != nil {
		a.logger.Error(r.Context(), err, "failed to save prompts", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type feedbackRequest struct {
	RunID    string `json:"run_id"`
	Feedback string `json:"feedback"`
}

type feedbackResponse struct {
	Message string `json:"message"`
}

func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		http.Error(w, `{"error":"feedback is required"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("courier.feedback.run_id", req.RunID))

	// Conversation context is optional; feedback about general behavior
	// arrives without a run reference.
	var conv *triage.Conversation
	if req.RunID != "" {
		result, ok, err := a.svc.Get(r.Context(), req.RunID)
		if err != nil {
			a.logger.Error(r.Context(), err, "failed to load run for feedback", "id", req.RunID)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		conv = result.Conversation
	}

	message := a.feedback.Run(r.Context(), userID, conv, req.Feedback)

	writeJSON(w, http.StatusOK, feedbackResponse{Message: message})
}
