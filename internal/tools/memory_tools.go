package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/courier/internal/memory"
)

const defaultSearchLimit = 5

// SearchMemory lets the agent look up past notes within one user's namespace.
type SearchMemory struct {
	store  memory.Store
	userID string
}

// NewSearchMemory binds a search_memory tool to the given user's namespace.
func NewSearchMemory(store memory.Store, userID string) *SearchMemory {
	return &SearchMemory{store: store, userID: userID}
}

func (s *SearchMemory) Name() string { return "search_memory" }

func (s *SearchMemory) Description() string {
	return "Search stored memories about contacts, preferences, and past decisions. Use before answering questions you may have seen before."
}

func (s *SearchMemory) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "query": {"type": "string", "description": "What to search for"},
            "limit": {"type": "integer", "description": "Maximum results to return (default 5)"}
        },
        "required": ["query"]
    }`)
}

func (s *SearchMemory) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	items, err := s.store.SearchItems(ctx, s.userID, memory.CollectionMemories, input.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	type hit struct {
		Key     string `json:"key"`
		Content string `json:"content"`
	}
	hits := make([]hit, 0, len(items))
	for _, it := range items {
		hits = append(hits, hit{Key: it.Key, Content: it.Content})
	}
	return json.Marshal(map[string]any{"results": hits})
}

// ManageMemory lets the agent write or update a note in the user's namespace.
type ManageMemory struct {
	store  memory.Store
	userID string
}

// NewManageMemory binds a manage_memory tool to the given user's namespace.
func NewManageMemory(store memory.Store, userID string) *ManageMemory {
	return &ManageMemory{store: store, userID: userID}
}

func (m *ManageMemory) Name() string { return "manage_memory" }

func (m *ManageMemory) Description() string {
	return "Store a durable memory about a contact, preference, or decision. Provide a key to update an existing memory."
}

func (m *ManageMemory) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "content": {"type": "string", "description": "The memory to store"},
            "key": {"type": "string", "description": "Key of an existing memory to overwrite. Omit to create a new one."}
        },
        "required": ["content"]
    }`)
}

func (m *ManageMemory) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Content string `json:"content"`
		Key     string `json:"key,omitempty"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	key := input.Key
	if key == "" {
		key = ulid.Make().String()
	}

	err := m.store.PutItem(ctx, &memory.Item{
		UserID:     m.userID,
		Collection: memory.CollectionMemories,
		Key:        key,
		Content:    input.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return json.Marshal(map[string]string{"status": "stored", "key": key})
}
