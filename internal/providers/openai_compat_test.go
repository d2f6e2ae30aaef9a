package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAICompatProvider(t *testing.T) {
	p := NewOpenAICompatProvider("test-key", "http://localhost:11434/v1", "phi3:mini")
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.defaultModel != "phi3:mini" {
		t.Errorf("defaultModel = %q, want %q", p.defaultModel, "phi3:mini")
	}
}

func TestNewOpenAICompatProviderFromSpec(t *testing.T) {
	spec := FindByName("ollama")
	p := NewOpenAICompatProviderFromSpec(spec, "", "")
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["model"] != "phi3:mini" {
			t.Errorf("model = %v, want phi3:mini", req["model"])
		}
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 2 { // system + user
			t.Errorf("got %d messages, want 2", len(msgs))
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]any{"role": "assistant", "content": "Hello there!"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider("", server.URL, "phi3:mini")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:     []Message{{Role: "user", Content: "hi"}},
		SystemPrompt: "You are a helpful assistant.",
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello there!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestChat_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role": "assistant",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "web_search",
									"arguments": `{"query":"weather"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider("", server.URL, "phi3:mini")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "what's the weather?"}},
		Tools: []ToolDef{{
			Type: "function",
			Function: FunctionDef{
				Name:       "web_search",
				Parameters: json.RawMessage(`{"type":"object"}`),
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "web_search" || tc.ID != "call_1" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
}

func TestChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	p := NewOpenAICompatProvider("", server.URL, "phi3:mini")
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
