package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chattyhq/chatty/internal/tools"
)

// defaultPersona is used when the workspace has no SYSTEM.md yet.
const defaultPersona = "You are Chatty, a helpful conversational assistant. " +
	"Use the available tools when a question needs current information, file access, or computation. " +
	"Answer plainly otherwise."

// BootstrapFiles are read from the workspace in order to build the system prompt.
var BootstrapFiles = []string{
	"SYSTEM.md",
	"USER.md",
}

// ContextBuilder assembles the system prompt from workspace files and runtime
// context.
type ContextBuilder struct {
	workspace string
	tools     *tools.Registry
}

func NewContextBuilder(workspace string, toolRegistry *tools.Registry) *ContextBuilder {
	return &ContextBuilder{workspace: workspace, tools: toolRegistry}
}

// BuildSystemPrompt reads bootstrap files from the workspace and appends the
// memory content and runtime context.
func (c *ContextBuilder) BuildSystemPrompt(memoryContent string) string {
	var parts []string

	for _, name := range BootstrapFiles {
		data, err := os.ReadFile(filepath.Join(c.workspace, name))
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			parts = append(parts, s)
		}
	}

	base := strings.Join(parts, "\n\n---\n\n")
	if base == "" {
		base = defaultPersona
	}

	if memoryContent != "" {
		base += "\n\n## Memory\n\n" + memoryContent
	}

	toolNames := c.tools.Names()

	base += fmt.Sprintf(
		"\n\n## Runtime Context\n- Current time: %s\n- Workspace: %s\n- Available tools: %s",
		time.Now().Format(time.RFC3339),
		c.workspace,
		strings.Join(toolNames, ", "),
	)

	return base
}
