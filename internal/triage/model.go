package triage

import (
	"fmt"
	"time"

	"github.com/linnemanlabs/courier/internal/mail"
)

// Status tracks where a run is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet started
	StatusPending Status = "pending"

	// StatusInProgress means currently being processed
	StatusInProgress Status = "in_progress"

	// StatusComplete means finished successfully
	StatusComplete Status = "complete"

	// StatusFailed means finished with errors
	StatusFailed Status = "failed"
)

// Classification is the three-way triage outcome for an email.
type Classification string

const (
	ClassIgnore  Classification = "ignore"
	ClassNotify  Classification = "notify"
	ClassRespond Classification = "respond"
)

// ParseClassification validates a label returned by the router. Anything
// outside the three known values is an unrecoverable classification error.
func ParseClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassIgnore, ClassNotify, ClassRespond:
		return Classification(s), nil
	default:
		return "", fmt.Errorf("invalid classification: %q", s)
	}
}

// Decision is the router's structured output for one email.
type Decision struct {
	Classification Classification `json:"classification"`
	Reasoning      string         `json:"reasoning"`
}

// Turn is one recorded step of the response agent conversation.
type Turn struct {
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	Duration   float64        `json:"duration_seconds,omitempty"`
}

// Conversation is the full recorded transcript of a response agent run.
type Conversation struct {
	Turns []Turn `json:"turns"`
}

// Result is the outcome of processing one email.
type Result struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Email          mail.Email     `json:"email"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Reply          string         `json:"reply,omitempty"`
	ToolsUsed      []string       `json:"tools_used,omitempty"`
	Conversation   *Conversation  `json:"conversation,omitempty"`
	Model          string         `json:"model,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    time.Time      `json:"completed_at,omitzero"`
	Duration       float64        `json:"duration_seconds,omitempty"`
	InputTokens    int            `json:"input_tokens,omitempty"`
	OutputTokens   int            `json:"output_tokens,omitempty"`
	ToolCalls      int            `json:"tool_calls,omitempty"`
}
