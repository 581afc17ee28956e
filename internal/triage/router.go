package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/tools"
)

// RouterTokens bounds the classification response size.
const RouterTokens = 1024

const routeToolName = "route_email"

// routeToolDef constrains the router's output to the three-valued
// classification plus reasoning via forced tool use.
var routeToolDef = tools.ToolDef{
	Name:        routeToolName,
	Description: "Record the triage decision for the email.",
	InputSchema: json.RawMessage(`{
        "type": "object",
        "properties": {
            "reasoning": {
                "type": "string",
                "description": "Step-by-step reasoning behind the classification"
            },
            "classification": {
                "type": "string",
                "enum": ["ignore", "notify", "respond"],
                "description": "'ignore' for irrelevant emails, 'notify' for important information that needs no response, 'respond' for emails that need a reply"
            }
        },
        "required": ["reasoning", "classification"]
    }`),
}

// Router classifies emails into ignore/notify/respond with a single
// structured-output LLM call. No retry or backoff: a provider error or an
// out-of-range label fails the run.
type Router struct {
	provider Provider
	logger   log.Logger
}

// NewRouter creates a router over the given provider.
func NewRouter(provider Provider, logger log.Logger) *Router {
	if logger == nil {
		logger = log.Nop()
	}
	return &Router{provider: provider, logger: logger}
}

// Classify submits the triage prompts and returns the validated decision.
func (r *Router) Classify(ctx context.Context, system, user string) (*Decision, error) {
	resp, err := r.provider.Send(ctx, &LLMRequest{
		MaxTokens: RouterTokens,
		System:    system,
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: user}}},
		},
		Tools:      []tools.ToolDef{routeToolDef},
		ToolChoice: routeToolName,
	})
	if err != nil {
		return nil, fmt.Errorf("classification call: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != routeToolName {
			continue
		}
		var raw struct {
			Reasoning      string `json:"reasoning"`
			Classification string `json:"classification"`
		}
		if err := json.Unmarshal(block.Input, &raw); err != nil {
			return nil, fmt.Errorf("parse classification output: %w", err)
		}
		class, err := ParseClassification(raw.Classification)
		if err != nil {
			return nil, err
		}
		r.logger.Info(ctx, "email classified",
			"classification", class,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)
		return &Decision{Classification: class, Reasoning: raw.Reasoning}, nil
	}

	return nil, fmt.Errorf("no %s tool call in classification response", routeToolName)
}
