package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chattyhq/chatty/internal/agent"
	"github.com/chattyhq/chatty/internal/bus"
	"github.com/chattyhq/chatty/internal/config"
	"github.com/chattyhq/chatty/internal/console"
	"github.com/chattyhq/chatty/internal/providers"
	"github.com/chattyhq/chatty/internal/scheduler"
	"github.com/chattyhq/chatty/internal/security"
	"github.com/chattyhq/chatty/internal/session"
	"github.com/chattyhq/chatty/internal/tools"
)

var rootCmd = &cobra.Command{
	Use:   "chatty",
	Short: "chatty - conversational assistant with secure tool execution",
	RunE:  runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively, or send a single message with -m",
	RunE:  runChat,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatty status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(chatCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime bundles everything a chat session needs.
type runtime struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	sessions  *session.Manager
	scheduler *scheduler.Service
	loop      *agent.AgentLoop
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.scheduler.Stop()

	// Single message mode bypasses the bus entirely.
	if messageFlag != "" {
		reply, err := rt.loop.ProcessDirect(cmd.Context(), messageFlag)
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		fmt.Println(reply)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	term := console.New(console.Config{
		Bus:          rt.bus,
		Sessions:     rt.sessions,
		Agent:        rt.loop,
		ConfigPath:   config.Path(),
		Temperatures: cfg.Temperatures,
		In:           os.Stdin,
		Out:          os.Stdout,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.bus.DispatchOutbound(ctx)
		return nil
	})
	g.Go(func() error {
		return rt.loop.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return term.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	base, err := providers.New(cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model)
	if err != nil {
		return nil, err
	}
	provider := providers.NewRetryProvider(base)

	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	filePolicy := security.NewFilePolicy(cfg.Workspace, cfg.Security.AllowedDirs...)
	limits := security.Limits{
		ExecTimeout:    time.Duration(cfg.Security.ExecTimeoutSeconds) * time.Second,
		MaxOutputBytes: cfg.Security.MaxOutputBytes,
	}
	python := tools.NewRunPythonTool(security.NewCodePolicy(), limits, cfg.Security.PythonBin, cfg.Workspace)

	mb := bus.NewMessageBus(64)
	sched := scheduler.NewService(filepath.Join(cfg.Workspace, "reminders.json"), mb)

	registry := tools.NewRegistry()
	register := func(t tools.Tool) {
		if tools.Allowed(t.Name(), cfg.Tools.Enabled, cfg.Tools.Disabled) {
			registry.Register(t)
		}
	}
	register(tools.NewReadFileTool(filePolicy))
	register(tools.NewWriteFileTool(filePolicy))
	register(tools.NewEditFileTool(filePolicy))
	register(tools.NewListDirTool(filePolicy))
	register(python)
	register(tools.NewReminderTool(sched, console.SessionKey))
	if search, err := tools.NewWebSearchTool(cfg.Tools.Search.APIKey); err == nil {
		register(search)
	}

	sessions := session.NewManager(cfg.SessionsDir)
	memory := agent.NewMemoryStore(cfg.Workspace)

	loop := agent.NewAgentLoop(agent.AgentLoopConfig{
		Bus:            mb,
		Provider:       provider,
		Sessions:       sessions,
		Tools:          registry,
		ContextBuilder: agent.NewContextBuilder(cfg.Workspace, registry),
		Memory:         memory,
		Python:         python,
		Model:          cfg.Provider.Model,
		MaxTokens:      cfg.Provider.MaxTokens,
		Temperatures: agent.Temperatures{
			Conversation: cfg.Temperatures.Conversation,
			Focused:      cfg.Temperatures.Focused,
		},
		MaxIterations: cfg.Provider.MaxToolIterations,
	})

	if err := sched.LoadFromDisk(); err != nil {
		slog.Warn("could not load saved reminders", "err", err)
	}
	sched.Start()

	return &runtime{cfg: cfg, bus: mb, sessions: sessions, scheduler: sched, loop: loop}, nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.Dir()
	cfgPath := config.Path()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		data, _ := json.MarshalIndent(config.DefaultConfig(), "", "  ")
		if err := os.WriteFile(cfgPath, data, 0600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	if err := os.MkdirAll(cfg.SessionsDir, 0755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	writeIfNotExists(filepath.Join(cfg.Workspace, "SYSTEM.md"), defaultSystemMD)
	writeIfNotExists(filepath.Join(cfg.Workspace, "MEMORY.md"), "")
	writeIfNotExists(filepath.Join(cfg.Workspace, "HISTORY.md"), "")

	fmt.Printf("Workspace ready: %s\n", cfg.Workspace)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Make sure Ollama is running, or edit the config to use a hosted provider")
	fmt.Println("  2. Set TAVILY_API_KEY to enable web search")
	fmt.Println("  3. Run 'chatty chat' to start talking")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.Path())
	fmt.Printf("Workspace: %s\n", cfg.Workspace)
	fmt.Printf("Provider: %s\n", cfg.Provider.Name)
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))

	if cfg.Tools.Search.APIKey != "" {
		fmt.Println("Web search: enabled")
	} else {
		fmt.Println("Web search: disabled (no API key)")
	}

	if _, err := os.Stat(cfg.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'chatty onboard')")
		return nil
	}
	mem := agent.NewMemoryStore(cfg.Workspace)
	if m := mem.ReadMemory(); m != "" {
		fmt.Printf("Memory: %d bytes\n", len(m))
	} else {
		fmt.Println("Memory: empty")
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultSystemMD = `# Chatty

You are Chatty, a conversational assistant.

You can search the web, read and write files in your workspace, run small
Python snippets, and set reminders. Use tools when a question needs current
information or computation; answer plainly otherwise.

## Guidelines
- Be concise and helpful
- Never touch files outside the workspace
- Remember durable facts about the user when asked
`
