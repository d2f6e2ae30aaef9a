package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chattyhq/chatty/internal/bus"
	"github.com/chattyhq/chatty/internal/providers"
	"github.com/chattyhq/chatty/internal/security"
	"github.com/chattyhq/chatty/internal/session"
	"github.com/chattyhq/chatty/internal/tools"
)

// mockProvider replays a fixed sequence of ChatResponse values and records
// the temperature of each request.
type mockProvider struct {
	responses    []*providers.ChatResponse
	callIndex    int
	temperatures []float64
}

func (m *mockProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	m.temperatures = append(m.temperatures, req.Temperature)
	if m.callIndex >= len(m.responses) {
		return &providers.ChatResponse{Content: "no more responses"}, nil
	}
	resp := m.responses[m.callIndex]
	m.callIndex++
	return resp, nil
}

// echoTool echoes its "text" parameter back.
type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echoes input" }
func (t *echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}
func (t *echoTool) Execute(_ context.Context, params json.RawMessage) (string, error) {
	var p struct {
		Text string `json:"text"`
	}
	json.Unmarshal(params, &p) //nolint:errcheck
	return "echo: " + p.Text, nil
}

// newTestLoop builds an AgentLoop wired to a temp session dir.
func newTestLoop(t *testing.T, provider providers.Provider, maxIter int) *AgentLoop {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(&echoTool{})

	return NewAgentLoop(AgentLoopConfig{
		Bus:           bus.NewMessageBus(10),
		Provider:      provider,
		Sessions:      session.NewManager(t.TempDir()),
		Tools:         reg,
		Model:         "test-model",
		MaxTokens:     1024,
		Temperatures:  Temperatures{Conversation: 0.7, Focused: 0.2},
		MaxIterations: maxIter,
	})
}

func TestProcessDirect_SimpleResponse(t *testing.T) {
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: "Hello!", StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)

	got, err := loop.ProcessDirect(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("expected %q, got %q", "Hello!", got)
	}
}

func TestProcessDirect_WithToolCall(t *testing.T) {
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{
				Content: "",
				ToolCalls: []providers.ToolCall{
					{ID: "tc1", Name: "echo", Arguments: `{"text":"world"}`},
				},
				StopReason: "tool_use",
			},
			{Content: "done", StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)

	got, err := loop.ProcessDirect(context.Background(), "use echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected %q, got %q", "done", got)
	}
	if mock.callIndex != 2 {
		t.Errorf("expected 2 provider calls, got %d", mock.callIndex)
	}
}

func TestProcessDirect_TemperatureSwitch(t *testing.T) {
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{
				ToolCalls:  []providers.ToolCall{{ID: "tc1", Name: "echo", Arguments: `{"text":"x"}`}},
				StopReason: "tool_use",
			},
			{Content: "summarized", StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)

	if _, err := loop.ProcessDirect(context.Background(), "use echo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.temperatures) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(mock.temperatures))
	}
	if mock.temperatures[0] != 0.7 {
		t.Errorf("first call temperature = %v, want 0.7", mock.temperatures[0])
	}
	if mock.temperatures[1] != 0.2 {
		t.Errorf("post-tool temperature = %v, want 0.2", mock.temperatures[1])
	}
}

func TestProcessDirect_InlineToolCallRecovered(t *testing.T) {
	// The model prints the tool call as JSON text instead of using the
	// native mechanism.
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: `{"tool_name": "echo", "arguments": {"text": "hi"}}`, StopReason: "stop"},
			{Content: "recovered", StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)

	got, err := loop.ProcessDirect(context.Background(), "use echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", got)
	}
	if mock.callIndex != 2 {
		t.Errorf("expected 2 provider calls, got %d", mock.callIndex)
	}
}

func TestProcessDirect_InlineUnknownToolNotRecovered(t *testing.T) {
	content := `{"tool_name": "launch_rockets", "arguments": {}}`
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: content, StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)

	got, err := loop.ProcessDirect(context.Background(), "hm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != content {
		t.Errorf("unknown inline tool should pass through as text, got %q", got)
	}
}

func TestProcessDirect_MaxIterations(t *testing.T) {
	// Provider always returns a tool call, the loop must stop at maxIter.
	infiniteResp := &providers.ChatResponse{
		Content: "thinking",
		ToolCalls: []providers.ToolCall{
			{ID: "tc1", Name: "echo", Arguments: `{"text":"loop"}`},
		},
		StopReason: "tool_use",
	}
	mock := &mockProvider{}
	for i := 0; i < 50; i++ {
		mock.responses = append(mock.responses, infiniteResp)
	}

	loop := newTestLoop(t, mock, 5)

	got, err := loop.ProcessDirect(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "thinking" {
		t.Errorf("expected %q after max iterations, got %q", "thinking", got)
	}
	if mock.callIndex != 5 {
		t.Errorf("expected exactly 5 provider calls (maxIter), got %d", mock.callIndex)
	}
}

func TestRun_ProcessesMessages(t *testing.T) {
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: "pong", StopReason: "stop"},
		},
	}

	mb := bus.NewMessageBus(10)
	loop := NewAgentLoop(AgentLoopConfig{
		Bus:           mb,
		Provider:      mock,
		Sessions:      session.NewManager(t.TempDir()),
		Tools:         tools.NewRegistry(),
		Model:         "test-model",
		MaxTokens:     1024,
		MaxIterations: 10,
	})

	received := make(chan bus.OutboundMessage, 1)
	mb.Subscribe("console", func(msg bus.OutboundMessage) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mb.DispatchOutbound(ctx)
	go loop.Run(ctx) //nolint:errcheck

	mb.PublishInbound(bus.InboundMessage{
		Source:  "console",
		ChatID:  "default",
		Content: "ping",
	})

	select {
	case msg := <-received:
		if msg.Content != "pong" {
			t.Errorf("expected %q, got %q", "pong", msg.Content)
		}
		if msg.Kind != "text" {
			t.Errorf("expected kind %q, got %q", "text", msg.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for outbound message")
	}
}

func TestRunLastCode_NoCodeYet(t *testing.T) {
	loop := newTestLoop(t, &mockProvider{}, 10)
	loop.python = tools.NewRunPythonTool(security.NewCodePolicy(), security.DefaultLimits(), "python3", t.TempDir())

	if _, err := loop.RunLastCode(context.Background(), "console"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
}

func TestRunLastCode_ExecutesTrackedBlock(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}

	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: "Here you go:\n```python\nprint(2 + 2)\n```", StopReason: "stop"},
		},
	}
	loop := newTestLoop(t, mock, 10)
	loop.python = tools.NewRunPythonTool(security.NewCodePolicy(), security.DefaultLimits(), "python3", t.TempDir())

	if _, err := loop.ProcessDirect(context.Background(), "write code"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := loop.RunLastCode(context.Background(), "console")
	if err != nil {
		t.Fatalf("RunLastCode error: %v", err)
	}
	if !strings.Contains(out, "4") {
		t.Errorf("expected output to contain 4, got %q", out)
	}
}

// consolidatingProvider answers chat requests with plain text and the
// consolidation request (recognizable by its lone save_memory tool) with a
// save_memory call.
type consolidatingProvider struct {
	chatCalls        int
	consolidateCalls int
}

func (p *consolidatingProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if len(req.Tools) == 1 && req.Tools[0].Function.Name == "save_memory" {
		p.consolidateCalls++
		args, _ := json.Marshal(map[string]string{
			"history_entry": "talked about hobbies",
			"memory_update": "User collects stamps",
		})
		return &providers.ChatResponse{
			ToolCalls: []providers.ToolCall{{ID: "c1", Name: "save_memory", Arguments: string(args)}},
		}, nil
	}
	p.chatCalls++
	return &providers.ChatResponse{Content: "noted", StopReason: "stop"}, nil
}

func TestConsolidationTriggered(t *testing.T) {
	workspace := t.TempDir()
	sessionsDir := t.TempDir()
	mock := &consolidatingProvider{}
	mgr := session.NewManager(sessionsDir)

	loop := NewAgentLoop(AgentLoopConfig{
		Bus:              bus.NewMessageBus(10),
		Provider:         mock,
		Sessions:         mgr,
		Tools:            tools.NewRegistry(),
		Memory:           NewMemoryStore(workspace),
		Model:            "test-model",
		MaxIterations:    5,
		ConsolidateAfter: 2,
	})

	if _, err := loop.ProcessDirect(context.Background(), "I collect stamps"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.consolidateCalls != 1 {
		t.Fatalf("expected 1 consolidation call, got %d", mock.consolidateCalls)
	}

	memData, err := os.ReadFile(filepath.Join(workspace, "MEMORY.md"))
	if err != nil {
		t.Fatalf("MEMORY.md not written: %v", err)
	}
	if string(memData) != "User collects stamps" {
		t.Errorf("MEMORY.md = %q", memData)
	}
	histData, err := os.ReadFile(filepath.Join(workspace, "HISTORY.md"))
	if err != nil {
		t.Fatalf("HISTORY.md not written: %v", err)
	}
	if !strings.Contains(string(histData), "talked about hobbies") {
		t.Errorf("HISTORY.md = %q", histData)
	}

	// Pointer advanced past the consolidated turn and was persisted.
	sess := mgr.GetOrCreate("console")
	if sess.Meta.LastConsolidated != 2 {
		t.Errorf("LastConsolidated = %d, want 2", sess.Meta.LastConsolidated)
	}
	if got := len(sess.History()); got != 0 {
		t.Errorf("history after consolidation = %d messages, want 0", got)
	}
	reloaded := session.NewManager(sessionsDir).GetOrCreate("console")
	if reloaded.Meta.LastConsolidated != 2 {
		t.Errorf("persisted LastConsolidated = %d, want 2", reloaded.Meta.LastConsolidated)
	}
}

func TestConsolidationBelowThreshold(t *testing.T) {
	workspace := t.TempDir()
	mock := &consolidatingProvider{}

	loop := NewAgentLoop(AgentLoopConfig{
		Bus:              bus.NewMessageBus(10),
		Provider:         mock,
		Sessions:         session.NewManager(t.TempDir()),
		Tools:            tools.NewRegistry(),
		Memory:           NewMemoryStore(workspace),
		Model:            "test-model",
		MaxIterations:    5,
		ConsolidateAfter: 10,
	})

	if _, err := loop.ProcessDirect(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.consolidateCalls != 0 {
		t.Errorf("consolidation ran below threshold (%d calls)", mock.consolidateCalls)
	}
	if _, err := os.Stat(filepath.Join(workspace, "MEMORY.md")); !os.IsNotExist(err) {
		t.Error("MEMORY.md should not exist below threshold")
	}
}

func TestProcessDirect_PersistsHistory(t *testing.T) {
	dir := t.TempDir()
	mock := &mockProvider{
		responses: []*providers.ChatResponse{
			{Content: "first", StopReason: "stop"},
		},
	}
	mgr := session.NewManager(dir)
	loop := NewAgentLoop(AgentLoopConfig{
		Bus:           bus.NewMessageBus(10),
		Provider:      mock,
		Sessions:      mgr,
		Tools:         tools.NewRegistry(),
		Model:         "test-model",
		MaxIterations: 10,
	})

	if _, err := loop.ProcessDirect(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A fresh manager must see the saved turn.
	sess := session.NewManager(dir).GetOrCreate("console")
	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}
