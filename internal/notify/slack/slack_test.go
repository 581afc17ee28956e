package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/mail"
	"github.com/linnemanlabs/courier/internal/triage"
)

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	result := &triage.Result{
		ID:             "01JN123",
		UserID:         "u-1",
		Status:         triage.StatusComplete,
		Classification: triage.ClassNotify,
		Reasoning:      "Sender is the CFO and the thread mentions a deadline.",
		Email: mail.Email{
			Author:  "cfo@example.com",
			Subject: "Q3 budget deadline",
		},
		CompletedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}

	if err := n.Send(context.Background(), result); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, reasoning = 5 blocks
	if len(blocks) != 5 {
		t.Errorf("blocks count = %d, want 5", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Q3 budget deadline") {
		t.Errorf("header text = %q, want to contain subject", headerText)
	}
	if !strings.Contains(headerText, "🔔") {
		t.Error("header should carry the notify bell")
	}
}

func TestSend_RespondHeader(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.Send(context.Background(), &triage.Result{
		ID:             "01JN124",
		Status:         triage.StatusComplete,
		Classification: triage.ClassRespond,
		Email:          mail.Email{Subject: "quick question"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	header := got["blocks"].([]any)[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Reply drafted") {
		t.Errorf("header text = %q, want reply-drafted wording", headerText)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", log.Nop())
	if err := n.Send(context.Background(), &triage.Result{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_TruncatesLongReasoning(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	longReasoning := strings.Repeat("x", 4000)
	n := New(srv.URL, log.Nop())
	err := n.Send(context.Background(), &triage.Result{
		ID:        "01JN456",
		Status:    triage.StatusComplete,
		Reasoning: longReasoning,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks := got["blocks"].([]any)
	reasoningSection := blocks[4].(map[string]any)
	text := reasoningSection["text"].(map[string]any)["text"].(string)

	if len(text) > maxReasoningLen+len("…") {
		t.Errorf("reasoning text length = %d, expected <= %d", len(text), maxReasoningLen+len("…"))
	}
	if !strings.HasSuffix(text, "…") {
		t.Error("expected truncated reasoning to end with ellipsis")
	}
}

func TestSend_EmptyReasoningPlaceholder(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.Send(context.Background(), &triage.Result{ID: "01JN457"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	reasoningSection := got["blocks"].([]any)[4].(map[string]any)
	text := reasoningSection["text"].(map[string]any)["text"].(string)
	if text != "_no reasoning recorded_" {
		t.Errorf("reasoning text = %q, want placeholder", text)
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("cfo@example.com", "Q3 budget deadline", "notify", "Sender is the CFO.")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "*bold* _italic_", "respond", "~strike~")
	f.Add("author\x00\x01\x02", "subject\nline", "cls\ttab", "reason\x00ing")
	f.Add(strings.Repeat("A", 5000), strings.Repeat("B", 5000), "ignore", strings.Repeat("x", 10000))
	f.Add("test", "```code block``` and <http://example.com|link>", "notify", "ok")

	f.Fuzz(func(t *testing.T, author, subject, classification, reasoning string) {
		result := &triage.Result{
			ID:             "fuzz-id",
			UserID:         "u-1",
			Status:         triage.StatusComplete,
			Classification: triage.Classification(classification),
			Reasoning:      reasoning,
			Email:          mail.Email{Author: author, Subject: subject},
			CompletedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		// Must not panic
		msg := buildMessage(result)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		// Must round-trip
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok {
			t.Fatal("expected blocks array")
		}
		if len(blocks) != 5 {
			t.Fatalf("blocks count = %d, want 5", len(blocks))
		}
	})
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.Send(context.Background(), &triage.Result{
		ID:     "01JN789",
		Status: triage.StatusComplete,
	})
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
