package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chattyhq/chatty/internal/providers"
)

// MemoryStore manages MEMORY.md (long-term facts) and HISTORY.md (timeline log).
type MemoryStore struct {
	workspace string
	mu        sync.Mutex
}

func NewMemoryStore(workspace string) *MemoryStore {
	return &MemoryStore{workspace: workspace}
}

// ReadMemory returns the content of MEMORY.md, or empty string if not found.
func (m *MemoryStore) ReadMemory() string {
	data, err := os.ReadFile(filepath.Join(m.workspace, "MEMORY.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// ReadHistory returns the content of HISTORY.md, or empty string if not found.
func (m *MemoryStore) ReadHistory() string {
	data, err := os.ReadFile(filepath.Join(m.workspace, "HISTORY.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// Consolidate uses the LLM to extract key facts from messages and update the
// memory files. The model is forced through a save_memory tool so the output
// arrives structured instead of as prose.
func (m *MemoryStore) Consolidate(ctx context.Context, provider providers.Provider, model string, messages []providers.Message) error {
	systemPrompt := "Review this conversation between the user and their assistant. " +
		"Call save_memory with a one-line history entry and updated memory content. " +
		"Keep durable facts: the user's preferences, standing reminders, files they work with, and anything they asked you to remember. Drop small talk."

	saveMemoryTool := providers.ToolDef{
		Type: "function",
		Function: providers.FunctionDef{
			Name:        "save_memory",
			Description: "Save the conversation summary to the workspace memory files",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"history_entry":{"type":"string","description":"One-line summary for the HISTORY.md timeline"},"memory_update":{"type":"string","description":"Full replacement content for MEMORY.md: durable facts about the user, their reminders, and their files"}},"required":["history_entry"]}`),
		},
	}

	req := providers.ChatRequest{
		Model:        model,
		Messages:     messages,
		Tools:        []providers.ToolDef{saveMemoryTool},
		SystemPrompt: systemPrompt,
	}

	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to consolidate memory: %w", err)
	}

	for _, tc := range resp.ToolCalls {
		if tc.Name != "save_memory" {
			continue
		}

		var args struct {
			HistoryEntry string `json:"history_entry"`
			MemoryUpdate string `json:"memory_update"`
		}
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			return fmt.Errorf("failed to parse save_memory args: %w", err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if args.HistoryEntry != "" {
			historyLine := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), args.HistoryEntry)
			f, err := os.OpenFile(filepath.Join(m.workspace, "HISTORY.md"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("failed to open HISTORY.md: %w", err)
			}
			_, werr := f.WriteString(historyLine)
			f.Close()
			if werr != nil {
				return fmt.Errorf("failed to write HISTORY.md: %w", werr)
			}
		}

		if args.MemoryUpdate != "" {
			if err := os.WriteFile(filepath.Join(m.workspace, "MEMORY.md"), []byte(args.MemoryUpdate), 0644); err != nil {
				return fmt.Errorf("failed to write MEMORY.md: %w", err)
			}
		}

		return nil
	}

	return nil
}
