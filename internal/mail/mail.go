// Package mail defines the inbound email model that flows through triage.
package mail

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Email is a single inbound email (or collapsed thread) as submitted by the
// user. Fields are plain strings and are never mutated after construction.
type Email struct {
	Author  string `json:"author"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Thread  string `json:"email_thread"`
}

// Validate checks that the fields needed for triage are present.
func (e *Email) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Author) == "" {
		errs = append(errs, errors.New("author is required"))
	}
	if strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Thread) == "" {
		errs = append(errs, errors.New("subject or email_thread is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// String renders the email for inclusion in an LLM prompt.
func (e *Email) String() string {
	return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", e.Author, e.To, e.Subject, e.Thread)
}

// SearchText returns the text used to retrieve similar past examples.
func (e *Email) SearchText() string {
	return strings.TrimSpace(e.Subject + " " + e.Thread)
}

// MarshalExample serializes the email for storage as a labeled triage example.
func (e *Email) MarshalExample() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}
	return string(b), nil
}

// UnmarshalExample parses an email previously stored with MarshalExample.
func UnmarshalExample(content string) (*Email, error) {
	var e Email
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return nil, fmt.Errorf("unmarshal email: %w", err)
	}
	return &e, nil
}
