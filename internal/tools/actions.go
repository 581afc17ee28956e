package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Action tools are deliberate stubs: they confirm the action the agent chose
// without touching a real mail or calendar backend. Swapping in real
// integrations means replacing Execute only.

// SendEmail drafts and "sends" an email reply.
type SendEmail struct{}

func (SendEmail) Name() string { return "send_email" }

func (SendEmail) Description() string {
	return "Write and send an email to the specified recipient. Use this to reply to emails on the user's behalf."
}

func (SendEmail) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "to": {"type": "string", "description": "Recipient email address"},
            "subject": {"type": "string", "description": "Email subject line"},
            "content": {"type": "string", "description": "Body of the email"}
        },
        "required": ["to", "subject", "content"]
    }`)
}

func (SendEmail) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.To == "" {
		return nil, fmt.Errorf("to is required")
	}
	return json.Marshal(fmt.Sprintf("Email sent to %s with subject '%s'", input.To, input.Subject))
}

// ScheduleMeeting books a calendar meeting.
type ScheduleMeeting struct{}

func (ScheduleMeeting) Name() string { return "schedule_meeting" }

func (ScheduleMeeting) Description() string {
	return "Schedule a calendar meeting with the specified attendees."
}

func (ScheduleMeeting) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "attendees": {"type": "array", "items": {"type": "string"}, "description": "Email addresses of meeting attendees"},
            "subject": {"type": "string", "description": "Meeting subject"},
            "duration_minutes": {"type": "integer", "description": "Length of the meeting in minutes"},
            "preferred_day": {"type": "string", "description": "Preferred day for the meeting"}
        },
        "required": ["attendees", "subject", "duration_minutes", "preferred_day"]
    }`)
}

func (ScheduleMeeting) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Attendees       []string `json:"attendees"`
		Subject         string   `json:"subject"`
		DurationMinutes int      `json:"duration_minutes"`
		PreferredDay    string   `json:"preferred_day"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if len(input.Attendees) == 0 {
		return nil, fmt.Errorf("attendees is required")
	}
	return json.Marshal(fmt.Sprintf("Meeting '%s' scheduled for %s with %d attendees",
		input.Subject, input.PreferredDay, len(input.Attendees)))
}

// CheckAvailability lists open calendar slots for a day.
type CheckAvailability struct{}

func (CheckAvailability) Name() string { return "check_calendar_availability" }

func (CheckAvailability) Description() string {
	return "Check the calendar for available time slots on a given day."
}

func (CheckAvailability) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "day": {"type": "string", "description": "The day to check for availability"}
        },
        "required": ["day"]
    }`)
}

func (CheckAvailability) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Day string `json:"day"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.Day == "" {
		return nil, fmt.Errorf("day is required")
	}
	return json.Marshal(fmt.Sprintf("Available times on %s: 9:00 AM, 2:00 PM, 4:00 PM", input.Day))
}
