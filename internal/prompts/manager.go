package prompts

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/memory"
)

// Manager loads and saves per-user prompt records with read-or-default
// semantics: a missing record is created from Defaults on first read, and
// saves overwrite records wholesale.
type Manager struct {
	store  memory.Store
	logger log.Logger
}

// NewManager creates a prompt manager over the given store.
func NewManager(store memory.Store, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{store: store, logger: logger}
}

// Get returns the prompt for (userID, key), seeding the default if absent.
func (m *Manager) Get(ctx context.Context, userID, key string) (string, error) {
	text, ok, err := m.store.GetPrompt(ctx, userID, key)
	if err != nil {
		return "", fmt.Errorf("get prompt %q: %w", key, err)
	}
	if ok {
		return text, nil
	}

	def, known := Defaults[key]
	if !known {
		return "", fmt.Errorf("unknown prompt key %q", key)
	}
	if err := m.store.PutPrompt(ctx, userID, key, def); err != nil {
		return "", fmt.Errorf("seed default prompt %q: %w", key, err)
	}
	m.logger.Info(ctx, "seeded default prompt", "user_id", userID, "key", key)
	return def, nil
}

// TriageRules returns the three triage rule strings for the user.
func (m *Manager) TriageRules(ctx context.Context, userID string) (*TriageRules, error) {
	ignore, err := m.Get(ctx, userID, KeyTriageIgnore)
	if err != nil {
		return nil, err
	}
	notify, err := m.Get(ctx, userID, KeyTriageNotify)
	if err != nil {
		return nil, err
	}
	respond, err := m.Get(ctx, userID, KeyTriageRespond)
	if err != nil {
		return nil, err
	}
	return &TriageRules{Ignore: ignore, Notify: notify, Respond: respond}, nil
}

// AgentInstructions returns the response agent instruction prompt for the user.
func (m *Manager) AgentInstructions(ctx context.Context, userID string) (string, error) {
	return m.Get(ctx, userID, KeyAgentInstructions)
}

// All returns the full prompt set for the user, seeding defaults as needed.
func (m *Manager) All(ctx context.Context, userID string) (*Set, error) {
	rules, err := m.TriageRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	agent, err := m.AgentInstructions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Set{
		AgentInstructions: agent,
		TriageIgnore:      rules.Ignore,
		TriageNotify:      rules.Notify,
		TriageRespond:     rules.Respond,
	}, nil
}

// SavePrompt overwrites a single prompt record for the user.
func (m *Manager) SavePrompt(ctx context.Context, userID, key, text string) error {
	if _, known := Defaults[key]; !known {
		return fmt.Errorf("unknown prompt key %q", key)
	}
	if err := m.store.PutPrompt(ctx, userID, key, text); err != nil {
		return fmt.Errorf("save prompt %q: %w", key, err)
	}
	return nil
}

// Save overwrites all four prompt records for the user.
func (m *Manager) Save(ctx context.Context, userID string, set *Set) error {
	for key, text := range map[string]string{
		KeyAgentInstructions: set.AgentInstructions,
		KeyTriageIgnore:      set.TriageIgnore,
		KeyTriageNotify:      set.TriageNotify,
		KeyTriageRespond:     set.TriageRespond,
	} {
		if err := m.store.PutPrompt(ctx, userID, key, text); err != nil {
			return fmt.Errorf("save prompt %q: %w", key, err)
		}
	}
	m.logger.Info(ctx, "saved prompts", "user_id", userID)
	return nil
}
