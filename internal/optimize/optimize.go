// Package optimize rewrites a user's stored prompts from natural-language
// feedback about a past run. The rewrite itself is delegated to the LLM via
// forced structured tool output; this package owns feedback sanitization,
// conversation packaging, diffing, and persistence of changed prompts.
package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/prompts"
	"github.com/linnemanlabs/courier/internal/tools"
	"github.com/linnemanlabs/courier/internal/triage"
)

// OptimizerTokens bounds the rewrite response size.
const OptimizerTokens = 2048

// maxMessageLen truncates packaged conversation messages.
const maxMessageLen = 200

const updateToolName = "update_prompts"

// Optimizer names understood by the rewrite tool, mapped to prompt record keys.
var promptNames = map[string]string{
	"main_agent":     prompts.KeyAgentInstructions,
	"triage-ignore":  prompts.KeyTriageIgnore,
	"triage-notify":  prompts.KeyTriageNotify,
	"triage-respond": prompts.KeyTriageRespond,
}

var updateToolDef = tools.ToolDef{
	Name:        updateToolName,
	Description: "Record the prompts that should change. Only include prompts whose text you are changing.",
	InputSchema: json.RawMessage(`{
        "type": "object",
        "properties": {
            "updates": {
                "type": "array",
                "items": {
                    "type": "object",
                    "properties": {
                        "name": {
                            "type": "string",
                            "enum": ["main_agent", "triage-ignore", "triage-notify", "triage-respond"]
                        },
                        "prompt": {
                            "type": "string",
                            "description": "The full replacement prompt text"
                        }
                    },
                    "required": ["name", "prompt"]
                }
            }
        },
        "required": ["updates"]
    }`),
}

// Outcome labels reported to the metrics hook.
const (
	OutcomeUpdated  = "updated"
	OutcomeNoChange = "no_change"
	OutcomeFiltered = "content_filter"
	OutcomeError    = "error"
)

// Optimizer drives the prompt rewrite loop for one user at a time.
type Optimizer struct {
	provider  triage.Provider
	manager   *prompts.Manager
	logger    log.Logger
	onOutcome func(outcome string)
}

// New creates an optimizer. onOutcome may be nil.
func New(provider triage.Provider, manager *prompts.Manager, logger log.Logger, onOutcome func(outcome string)) *Optimizer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Optimizer{provider: provider, manager: manager, logger: logger, onOutcome: onOutcome}
}

// Run applies the user's feedback to their stored prompts and returns a
// markdown summary for display. Failures are rendered as user-facing markdown
// rather than returned as errors.
func (o *Optimizer) Run(ctx context.Context, userID string, conv *triage.Conversation, feedback string) string {
	current, err := o.manager.All(ctx, userID)
	if err != nil {
		o.logger.Error(ctx, err, "optimizer could not load prompts", "user_id", userID)
		o.count(OutcomeError)
		return errorMessage(err)
	}

	safeFeedback := "Email assistant behavior update request: " + Sanitize(feedback)
	transcript := packageConversation(conv)

	resp, err := o.provider.Send(ctx, &triage.LLMRequest{
		MaxTokens:  OptimizerTokens,
		System:     optimizerSystem(current),
		Messages:   []triage.Message{{Role: "user", Content: []triage.ContentBlock{{Type: "text", Text: transcript + "\n\nFeedback: " + safeFeedback}}}},
		Tools:      []tools.ToolDef{updateToolDef},
		ToolChoice: updateToolName,
	})
	if err != nil {
		o.logger.Error(ctx, err, "optimizer llm call failed", "user_id", userID)
		if isContentFilter(err) {
			o.count(OutcomeFiltered)
			return "⚠️ **Safety Filter Activated**\n\nYour feedback triggered content safety filters. Please rephrase your feedback to focus on specific email handling behaviors you'd like to modify."
		}
		o.count(OutcomeError)
		return fmt.Sprintf("⚠️ **Optimization Error**\n\nCould not update prompts: %v", err)
	}

	updates, err := parseUpdates(resp)
	if err != nil {
		o.logger.Error(ctx, err, "optimizer output unparseable", "user_id", userID)
		o.count(OutcomeError)
		return errorMessage(err)
	}

	var summary []string
	currentByName := map[string]string{
		"main_agent":     current.AgentInstructions,
		"triage-ignore":  current.TriageIgnore,
		"triage-notify":  current.TriageNotify,
		"triage-respond": current.TriageRespond,
	}
	for _, up := range updates {
		key, ok := promptNames[up.Name]
		if !ok || up.Prompt == "" || up.Prompt == currentByName[up.Name] {
			continue
		}
		if err := o.manager.SavePrompt(ctx, userID, key, up.Prompt); err != nil {
			o.logger.Error(ctx, err, "optimizer could not persist prompt", "user_id", userID, "key", key)
			o.count(OutcomeError)
			return errorMessage(err)
		}
		summary = append(summary, fmt.Sprintf("✅ Updated: **%s**", up.Name))
	}

	if len(summary) == 0 {
		o.count(OutcomeNoChange)
		return "No prompts were updated based on your feedback."
	}

	o.logger.Info(ctx, "prompts optimized", "user_id", userID, "updated", len(summary))
	o.count(OutcomeUpdated)
	return "## Prompt Updates\n\n" + strings.Join(summary, "\n")
}

// Sanitize defuses naive prompt-injection phrases in user feedback.
func Sanitize(feedback string) string {
	replacer := strings.NewReplacer(
		"ignore all previous", "consider previous",
		"ignore previous", "consider previous",
		"disregard", "consider",
	)
	return replacer.Replace(feedback)
}

// packageConversation flattens a run transcript for the optimizer, truncating
// long messages. A missing or empty conversation gets a minimal placeholder.
func packageConversation(conv *triage.Conversation) string {
	var lines []string
	if conv != nil {
		for _, turn := range conv.Turns {
			for _, block := range turn.Content {
				var text string
				switch block.Type {
				case "text":
					text = block.Text
				case "tool_use":
					text = fmt.Sprintf("[tool call: %s]", block.Name)
				case "tool_result":
					text = fmt.Sprintf("[tool result] %s", block.Content)
				default:
					continue
				}
				if len(text) > maxMessageLen {
					text = text[:maxMessageLen] + "..."
				}
				lines = append(lines, turn.Role+": "+text)
			}
		}
	}
	if len(lines) == 0 {
		lines = []string{
			"user: Please process this email",
			"assistant: I've processed the email for you.",
		}
	}
	return "Conversation:\n" + strings.Join(lines, "\n")
}

func optimizerSystem(current *prompts.Set) string {
	return fmt.Sprintf(`You maintain the prompts of an email assistant. Given a conversation and user feedback, decide which prompts to rewrite. Improve them while maintaining safety guidelines, and leave prompts unrelated to the feedback untouched.

Prompts:

1. main_agent - instructions for the email response agent. Update only when feedback relates to email writing or scheduling.
Current text:
%s

2. triage-ignore - rules for which emails to ignore. Update only when feedback relates to which emails should be ignored.
Current text:
%s

3. triage-notify - rules for which emails warrant a notification. Update only when feedback relates to which emails need notification.
Current text:
%s

4. triage-respond - rules for which emails need a reply. Update only when feedback relates to which emails need response.
Current text:
%s`,
		current.AgentInstructions, current.TriageIgnore, current.TriageNotify, current.TriageRespond)
}

type update struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func parseUpdates(resp *triage.LLMResponse) ([]update, error) {
	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != updateToolName {
			continue
		}
		var raw struct {
			Updates []update `json:"updates"`
		}
		if err := json.Unmarshal(block.Input, &raw); err != nil {
			return nil, fmt.Errorf("parse optimizer output: %w", err)
		}
		return raw.Updates, nil
	}
	return nil, fmt.Errorf("no %s tool call in optimizer response", updateToolName)
}

// isContentFilter detects provider content-policy rejections by substring,
// which is the only signal hosted APIs give us.
func isContentFilter(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "content_filter") || strings.Contains(msg, "content management policy")
}

func errorMessage(err error) string {
	return fmt.Sprintf("❌ **Error Processing Feedback**\n\nAn error occurred while processing your feedback. Please try again with simpler instructions.\n\nTechnical details: %v", err)
}

func (o *Optimizer) count(outcome string) {
	if o.onOutcome != nil {
		o.onOutcome(outcome)
	}
}
