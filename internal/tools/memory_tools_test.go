package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/linnemanlabs/courier/internal/memory"
	"github.com/linnemanlabs/courier/internal/memory/memstore"
)

func TestManageMemory_StoresWithGeneratedKey(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	tool := NewManageMemory(store, "u-1")

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"Alice prefers morning meetings"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var resp struct {
		Status string `json:"status"`
		Key    string `json:"key"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if resp.Status != "stored" {
		t.Errorf("status = %q, want stored", resp.Status)
	}
	if resp.Key == "" {
		t.Error("expected generated key")
	}

	items, err := store.SearchItems(context.Background(), "u-1", memory.CollectionMemories, "morning meetings", 5)
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Key != resp.Key {
		t.Errorf("stored key = %q, want %q", items[0].Key, resp.Key)
	}
}

func TestManageMemory_OverwritesByKey(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	tool := NewManageMemory(store, "u-1")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"Alice prefers mornings","key":"pref-alice"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"Alice prefers afternoons","key":"pref-alice"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	items, err := store.SearchItems(context.Background(), "u-1", memory.CollectionMemories, "alice prefers", 5)
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 after overwrite", len(items))
	}
	if items[0].Content != "Alice prefers afternoons" {
		t.Errorf("content = %q, want the updated memory", items[0].Content)
	}
}

func TestManageMemory_RequiresContent(t *testing.T) {
	t.Parallel()

	tool := NewManageMemory(memstore.New(), "u-1")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestSearchMemory_ReturnsHits(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	_ = store.PutItem(context.Background(), &memory.Item{
		UserID: "u-1", Collection: memory.CollectionMemories, Key: "m-1",
		Content: "Bob handles vendor contracts",
	})
	_ = store.PutItem(context.Background(), &memory.Item{
		UserID: "u-1", Collection: memory.CollectionMemories, Key: "m-2",
		Content: "standup moved to 9:30",
	})

	tool := NewSearchMemory(store, "u-1")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"vendor contracts"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var resp struct {
		Results []struct {
			Key     string `json:"key"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].Key != "m-1" {
		t.Errorf("hit key = %q, want m-1", resp.Results[0].Key)
	}
}

func TestSearchMemory_UserScoped(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	_ = store.PutItem(context.Background(), &memory.Item{
		UserID: "u-2", Collection: memory.CollectionMemories, Key: "m-1",
		Content: "vendor contracts",
	})

	tool := NewSearchMemory(store, "u-1")
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"vendor contracts"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %d, want 0 (other user's memories must be invisible)", len(resp.Results))
	}
}

func TestSearchMemory_RequiresQuery(t *testing.T) {
	t.Parallel()

	tool := NewSearchMemory(memstore.New(), "u-1")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing query")
	}
}
