// Package slack posts triage notifications to Slack via incoming webhooks.
// notify-classified emails land here, as do completed agent replies.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/triage"
)

const (
	maxReasoningLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier sends run results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts a run result to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, result *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(result)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "run_id", result.ID, "classification", result.Classification)
	return nil
}

func buildMessage(r *triage.Result) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			reasoningBlock(r),
		},
	}
}

func headerBlock(r *triage.Result) map[string]any {
	var text string
	switch r.Classification {
	case triage.ClassNotify:
		text = fmt.Sprintf("🔔 Notify: %s", r.Email.Subject)
	case triage.ClassRespond:
		text = fmt.Sprintf("📧 Reply drafted: %s", r.Email.Subject)
	default:
		text = fmt.Sprintf("Email triaged: %s", r.Email.Subject)
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Result) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*From:* %s", r.Email.Author),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*User:* %s", r.UserID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Classification:* %s", r.Classification),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", r.Status),
		},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reasoningBlock(r *triage.Result) map[string]any {
	reasoning := strings.TrimSpace(r.Reasoning)
	if reasoning == "" {
		reasoning = "_no reasoning recorded_"
	}
	if len(reasoning) > maxReasoningLen {
		reasoning = reasoning[:maxReasoningLen] + "…"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": reasoning,
		},
	}
}
