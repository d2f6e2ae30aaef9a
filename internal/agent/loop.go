package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chattyhq/chatty/internal/bus"
	"github.com/chattyhq/chatty/internal/llmtext"
	"github.com/chattyhq/chatty/internal/providers"
	"github.com/chattyhq/chatty/internal/session"
	"github.com/chattyhq/chatty/internal/tools"
)

// AgentLoop consumes inbound messages, calls the LLM, executes tool calls, and
// publishes responses.
type AgentLoop struct {
	bus      *bus.MessageBus
	provider providers.Provider
	sessions *session.Manager
	tools    *tools.Registry
	builder  *ContextBuilder
	memory   *MemoryStore
	python   *tools.RunPythonTool

	model            string
	maxTokens        int
	temperatures     Temperatures
	maxIter          int
	consolidateAfter int

	mu       sync.Mutex
	lastCode map[string]string // session key -> last python block seen
}

// Temperatures holds the two sampling temperatures the loop switches between:
// Conversation for open-ended replies, Focused once tools are in play.
type Temperatures struct {
	Conversation float64
	Focused      float64
}

// AgentLoopConfig holds all dependencies and settings for AgentLoop.
type AgentLoopConfig struct {
	Bus              *bus.MessageBus
	Provider         providers.Provider
	Sessions         *session.Manager
	Tools            *tools.Registry
	ContextBuilder   *ContextBuilder
	Memory           *MemoryStore
	Python           *tools.RunPythonTool
	Model            string
	MaxTokens        int
	Temperatures     Temperatures
	MaxIterations    int
	ConsolidateAfter int
}

// NewAgentLoop creates an AgentLoop from the given config.
func NewAgentLoop(cfg AgentLoopConfig) *AgentLoop {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	consolidateAfter := cfg.ConsolidateAfter
	if consolidateAfter <= 0 {
		consolidateAfter = 40
	}
	return &AgentLoop{
		bus:              cfg.Bus,
		provider:         cfg.Provider,
		sessions:         cfg.Sessions,
		tools:            cfg.Tools,
		builder:          cfg.ContextBuilder,
		memory:           cfg.Memory,
		python:           cfg.Python,
		model:            cfg.Model,
		maxTokens:        cfg.MaxTokens,
		temperatures:     cfg.Temperatures,
		maxIter:          maxIter,
		consolidateAfter: consolidateAfter,
		lastCode:         make(map[string]string),
	}
}

// Run consumes inbound messages from the bus and processes each in a goroutine.
// Returns when ctx is cancelled.
func (a *AgentLoop) Run(ctx context.Context) error {
	for {
		msg, err := a.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		go a.processMessage(ctx, msg)
	}
}

// processMessage handles a single inbound message: builds context, runs the
// tool loop, saves the session, and publishes the outbound response.
func (a *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) {
	key := msg.SessionKey()
	sess := a.sessions.GetOrCreate(key)

	messages := sessionToProviderMessages(sess.History())
	messages = append(messages, providers.Message{Role: "user", Content: msg.Content})

	finalContent, err := a.runToolLoop(ctx, key, messages)
	if err != nil {
		slog.Error("agent tool loop error", "session", key, "err", err)
		a.bus.PublishOutbound(bus.OutboundMessage{
			Source:  msg.Source,
			ChatID:  msg.ChatID,
			Content: fmt.Sprintf("Error: %v", err),
			Kind:    "error",
		})
		return
	}

	sess.AppendMessage(session.Message{Role: "user", Content: msg.Content})
	sess.AppendMessage(session.Message{Role: "assistant", Content: finalContent})
	if err := a.sessions.Save(sess); err != nil {
		slog.Error("failed to save session", "session", key, "err", err)
	}

	a.consolidateIfNeeded(ctx, sess)

	a.bus.PublishOutbound(bus.OutboundMessage{
		Source:  msg.Source,
		ChatID:  msg.ChatID,
		Content: finalContent,
		Kind:    "text",
	})
}

// ProcessDirect processes a single message without the bus, for one-shot CLI
// mode. It shares the console session so one-shot questions and the REPL see
// the same history.
func (a *AgentLoop) ProcessDirect(ctx context.Context, message string) (string, error) {
	const key = "console"
	sess := a.sessions.GetOrCreate(key)

	messages := sessionToProviderMessages(sess.History())
	messages = append(messages, providers.Message{Role: "user", Content: message})

	finalContent, err := a.runToolLoop(ctx, key, messages)
	if err != nil {
		return "", err
	}

	sess.AppendMessage(session.Message{Role: "user", Content: message})
	sess.AppendMessage(session.Message{Role: "assistant", Content: finalContent})
	if err := a.sessions.Save(sess); err != nil {
		slog.Error("failed to save direct session", "err", err)
	}

	a.consolidateIfNeeded(ctx, sess)

	return finalContent, nil
}

// ErrNoCode is returned by RunLastCode before the assistant has produced any
// python block. The text is shown to the user as-is.
var ErrNoCode = errors.New("No code has been generated yet.")

// SetTemperatures swaps the sampling temperatures at runtime, for the console
// settings command.
func (a *AgentLoop) SetTemperatures(t Temperatures) {
	a.mu.Lock()
	a.temperatures = t
	a.mu.Unlock()
}

func (a *AgentLoop) currentTemperatures() Temperatures {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.temperatures
}

// RunLastCode executes the most recent python block the assistant produced in
// the given session. Returns an error when no code has been seen yet.
func (a *AgentLoop) RunLastCode(ctx context.Context, sessionKey string) (string, error) {
	if a.python == nil {
		return "", fmt.Errorf("code execution is not enabled")
	}
	a.mu.Lock()
	code := a.lastCode[sessionKey]
	a.mu.Unlock()
	if code == "" {
		return "", ErrNoCode
	}
	return a.python.Run(ctx, code)
}

// runToolLoop executes the LLM + tool call loop and returns the final text
// response. The first call of a turn uses the conversation temperature; once
// any tool has run, subsequent calls use the focused temperature so results
// are summarized rather than riffed on.
func (a *AgentLoop) runToolLoop(ctx context.Context, sessionKey string, messages []providers.Message) (string, error) {
	toolDefs := toolDefsToProviderTools(a.tools.Definitions())
	systemPrompt := a.systemPrompt()

	temps := a.currentTemperatures()
	temperature := temps.Conversation
	for i := 0; i < a.maxIter; i++ {
		req := providers.ChatRequest{
			Model:        a.model,
			Messages:     messages,
			Tools:        toolDefs,
			MaxTokens:    a.maxTokens,
			Temperature:  temperature,
			SystemPrompt: systemPrompt,
		}

		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			return "", fmt.Errorf("provider chat error: %w", err)
		}

		toolCalls := resp.ToolCalls
		content := resp.Content

		// Small local models often print the tool call as JSON text
		// instead of using the native mechanism. Recover it.
		if len(toolCalls) == 0 {
			if call, ok := llmtext.InlineToolCall(content); ok {
				if _, known := a.tools.Get(call.Name); known {
					toolCalls = []providers.ToolCall{{
						ID:        fmt.Sprintf("inline-%d", i),
						Name:      call.Name,
						Arguments: call.Arguments,
					}}
					content = ""
				}
			}
		}

		a.trackCode(sessionKey, content)

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		})

		if len(toolCalls) == 0 {
			return content, nil
		}

		for _, tc := range toolCalls {
			slog.Debug("executing tool", "name", tc.Name, "id", tc.ID)
			result := a.tools.Execute(ctx, tc.Name, json.RawMessage(tc.Arguments))
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
		temperature = temps.Focused
	}

	// Exceeded maxIter. Return whatever the last assistant content was.
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Content != "" {
			return messages[i].Content, nil
		}
	}
	return "", fmt.Errorf("max iterations (%d) reached without a final response", a.maxIter)
}

func (a *AgentLoop) systemPrompt() string {
	if a.builder == nil {
		return ""
	}
	memoryContent := ""
	if a.memory != nil {
		memoryContent = a.memory.ReadMemory()
	}
	return a.builder.BuildSystemPrompt(memoryContent)
}

// trackCode remembers the latest python block in assistant output so the
// console "run code" command can execute it on demand.
func (a *AgentLoop) trackCode(sessionKey, content string) {
	if content == "" || !strings.Contains(content, "```") {
		return
	}
	code := llmtext.ExtractCode(content, "python")
	if code == "" {
		return
	}
	a.mu.Lock()
	a.lastCode[sessionKey] = code
	a.mu.Unlock()
}

// consolidateIfNeeded folds older history into the memory files once the
// unconsolidated tail grows past the threshold.
func (a *AgentLoop) consolidateIfNeeded(ctx context.Context, sess *session.Session) {
	if a.memory == nil {
		return
	}
	history := sess.History()
	if len(history) < a.consolidateAfter {
		return
	}

	if err := a.memory.Consolidate(ctx, a.provider, a.model, sessionToProviderMessages(history)); err != nil {
		slog.Error("memory consolidation failed", "session", sess.Meta.Key, "err", err)
		return
	}
	sess.SetConsolidated(sess.Len())
	if err := a.sessions.Save(sess); err != nil {
		slog.Error("failed to save session after consolidation", "err", err)
	}
}

// sessionToProviderMessages converts session history to provider message format.
func sessionToProviderMessages(history []session.Message) []providers.Message {
	msgs := make([]providers.Message, 0, len(history))
	for _, m := range history {
		pm := providers.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			pm.ToolCalls = make([]providers.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				pm.ToolCalls[i] = providers.ToolCall{
					ID:        tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				}
			}
		}
		msgs = append(msgs, pm)
	}
	return msgs
}

// toolDefsToProviderTools converts tool registry definitions to provider tool format.
func toolDefsToProviderTools(defs []tools.ToolDefinition) []providers.ToolDef {
	result := make([]providers.ToolDef, len(defs))
	for i, d := range defs {
		result[i] = providers.ToolDef{
			Type: d.Type,
			Function: providers.FunctionDef{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  d.Function.Parameters,
			},
		}
	}
	return result
}
