// Package prompts owns the per-user prompt records that steer triage and the
// response agent, their defaults, and the prompt templates built from them.
package prompts

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/courier/internal/mail"
	"github.com/linnemanlabs/courier/internal/memory"
)

// Prompt record keys within a user's namespace.
const (
	KeyAgentInstructions = "agent_instructions"
	KeyTriageIgnore      = "triage_ignore"
	KeyTriageNotify      = "triage_notify"
	KeyTriageRespond     = "triage_respond"
)

// Defaults are written lazily on first read for a user.
var Defaults = map[string]string{
	KeyTriageIgnore:      "Marketing newsletters, spam emails, mass company announcements",
	KeyTriageNotify:      "Team member out sick, build system notifications, project status updates",
	KeyTriageRespond:     "Direct questions from team members, meeting requests, critical bug reports",
	KeyAgentInstructions: "Use these tools when appropriate to help manage tasks efficiently.",
}

// Profile describes the user the assistant acts on behalf of.
type Profile struct {
	Name       string
	FullName   string
	Background string
}

// TriageRules are the three per-user rule strings the router classifies
// against.
type TriageRules struct {
	Ignore  string
	Notify  string
	Respond string
}

// Set is the full editable prompt record set for a user.
type Set struct {
	AgentInstructions string `json:"agent_instructions"`
	TriageIgnore      string `json:"triage_ignore"`
	TriageNotify      string `json:"triage_notify"`
	TriageRespond     string `json:"triage_respond"`
}

// TriageSystem builds the router system prompt from the user profile, rule
// strings, and formatted few-shot examples.
func TriageSystem(p Profile, rules *TriageRules, examples string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are %s's executive email assistant. You triage %s's inbox.

%s's background: %s

Classify each email into exactly one of three categories:

1. IGNORE - emails that are not worth %s's time. Rules:
%s

2. NOTIFY - emails with important information that need no reply. Rules:
%s

3. RESPOND - emails that need a reply from %s. Rules:
%s
`,
		p.FullName, p.Name,
		p.Name, p.Background,
		p.Name, rules.Ignore,
		rules.Notify,
		p.Name, rules.Respond,
	)
	if examples != "" {
		b.WriteString("\n")
		b.WriteString(examples)
		b.WriteString("\n")
	}
	b.WriteString("\nReport your classification and step-by-step reasoning.")
	return b.String()
}

// TriageUser builds the router user prompt from the email fields.
func TriageUser(e *mail.Email) string {
	return fmt.Sprintf(`Please triage this email:

From: %s
To: %s
Subject: %s

%s`, e.Author, e.To, e.Subject, e.Thread)
}

// AgentSystem builds the response agent system prompt from stored
// instructions and the user profile.
func AgentSystem(p Profile, instructions string) string {
	return fmt.Sprintf(`You are %s's email assistant. You draft replies, schedule meetings, and check calendar availability on %s's behalf.

%s's background: %s

Instructions:
%s

Use the available tools to act. Record durable facts about contacts and preferences with manage_memory, and consult search_memory before answering questions you may have seen before.`,
		p.FullName, p.Name,
		p.Name, p.Background,
		instructions,
	)
}

const fewShotSeparator = "\n\n------------\n\n"

// FormatFewShot renders retrieved example items for inclusion in the triage
// system prompt. Items whose content does not parse as a stored email are
// skipped.
func FormatFewShot(items []memory.Item) string {
	if len(items) == 0 {
		return ""
	}

	parts := []string{"Here are some previous examples:"}
	for _, it := range items {
		em, err := mail.UnmarshalExample(it.Content)
		if err != nil {
			continue
		}
		thread := em.Thread
		if len(thread) > 400 {
			thread = thread[:400]
		}
		parts = append(parts, fmt.Sprintf("Email Subject: %s\nEmail From: %s\nEmail To: %s\nEmail Content: \n```\n%s\n```\n> Triage Result: %s",
			em.Subject, em.Author, em.To, thread, it.Label))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, fewShotSeparator)
}
