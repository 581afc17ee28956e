package assistapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/courier/internal/mail"
)

const defaultListLimit = 20

type submitRequest struct {
	UserID string     `json:"user_id"`
	Email  mail.Email `json:"email"`
}

func (a *API) handleSubmitEmail(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	sr, err := a.svc.Submit(r.Context(), req.UserID, &req.Email)
	if err != nil {
		a.logger.Error(r.Context(), err, "email submission rejected", "user_id", req.UserID)
		http.Error(w, `{"error":"invalid submission"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("courier.run.id", sr.ID))

	writeJSON(w, http.StatusAccepted, map[string]string{"id": sr.ID})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("courier.run.id", id))

	result, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run result", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("courier.run.status", string(result.Status)))

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := a.svc.ListByUser(r.Context(), userID, limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list runs", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": results})
}

type exampleRequest struct {
	Email mail.Email `json:"email"`
	Label string     `json:"label"`
}

func (a *API) handleAddExample(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req exampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	if err := a.svc.AddExample(r.Context(), userID, &req.Email, req.Label); err != nil {
		a.logger.Error(r.Context(), err, "failed to add example", "user_id", userID)
		http.Error(w, `{"error":"invalid example"}`, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}
