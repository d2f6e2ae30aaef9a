package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewSession(t *testing.T) {
	m := NewManager(t.TempDir())
	s := m.GetOrCreate("console:local")
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if len(s.Messages) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(s.Messages))
	}
	if s.Meta.Key != "console:local" {
		t.Fatalf("expected key 'console:local', got %q", s.Meta.Key)
	}
}

func TestAppendMessage(t *testing.T) {
	m := NewManager(t.TempDir())
	s := m.GetOrCreate("test:append")

	s.AppendMessage(Message{Role: "user", Content: "hello"})
	s.AppendMessage(Message{Role: "assistant", Content: "hi"})

	msgs := s.AllMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestHistory(t *testing.T) {
	m := NewManager(t.TempDir())
	s := m.GetOrCreate("test:history")

	for i := 0; i < 5; i++ {
		s.AppendMessage(Message{Role: "user", Content: fmt.Sprintf("msg%d", i)})
	}
	s.SetConsolidated(2)

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 messages in history, got %d", len(history))
	}
	if history[0].Content != "msg2" {
		t.Errorf("expected first history message to be 'msg2', got %q", history[0].Content)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	s := m.GetOrCreate("console:local")
	s.AppendMessage(Message{Role: "user", Content: "save me"})
	s.AppendMessage(Message{
		Role:      "assistant",
		Content:   "saved",
		ToolCalls: []ToolCallRecord{{ID: "tc1", Name: "web_search", Arguments: `{"query":"x"}`}},
	})
	s.SetConsolidated(1)

	if err := m.Save(s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load via a fresh manager (no cache)
	m2 := NewManager(dir)
	s2 := m2.GetOrCreate("console:local")

	if s2.Meta.Key != "console:local" {
		t.Errorf("expected key 'console:local', got %q", s2.Meta.Key)
	}
	if s2.Meta.LastConsolidated != 1 {
		t.Errorf("expected LastConsolidated=1, got %d", s2.Meta.LastConsolidated)
	}
	msgs := s2.AllMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after load, got %d", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].Name != "web_search" {
		t.Errorf("tool calls not round-tripped: %+v", msgs[1])
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	s := m.GetOrCreate("console:local")
	s.AppendMessage(Message{Role: "user", Content: "forget me"})
	if err := m.Save(s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := m.Delete("console:local"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, keyToFilename("console:local"))); !os.IsNotExist(err) {
		t.Error("session file still exists after Delete")
	}

	// fresh session after delete
	s2 := m.GetOrCreate("console:local")
	if s2.Len() != 0 {
		t.Errorf("expected empty session after Delete, got %d messages", s2.Len())
	}
}

func TestDelete_Missing(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Delete("never:existed"); err != nil {
		t.Errorf("Delete of missing session = %v, want nil", err)
	}
}

func TestKeyToFilename(t *testing.T) {
	got := keyToFilename("console:local/sub")
	if got != "console_local_sub.jsonl" {
		t.Errorf("keyToFilename = %q", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	m := NewManager(t.TempDir())
	s := m.GetOrCreate("test:concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.AppendMessage(Message{Role: "user", Content: fmt.Sprintf("m%d", n)})
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("expected 10 messages, got %d", s.Len())
	}
}
