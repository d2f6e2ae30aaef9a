// Package console implements the interactive terminal channel: a colored
// prompt, a small command table, and the bridge onto the message bus.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/chattyhq/chatty/internal/agent"
	"github.com/chattyhq/chatty/internal/bus"
	"github.com/chattyhq/chatty/internal/config"
	"github.com/chattyhq/chatty/internal/session"
)

// SessionKey is the session shared by the REPL and one-shot CLI mode.
const SessionKey = "console"

var (
	promptColor = color.New(color.FgBlue).SprintFunc()
	replyColor  = color.New(color.FgCyan).SprintFunc()
	warnColor   = color.New(color.FgYellow).SprintFunc()
	errorColor  = color.New(color.FgRed).SprintFunc()
	okColor     = color.New(color.FgGreen).SprintFunc()
	codeColor   = color.New(color.FgMagenta).SprintFunc()
)

// Console runs the interactive terminal loop.
type Console struct {
	bus        *bus.MessageBus
	sessions   *session.Manager
	agent      *agent.AgentLoop
	configPath string
	temps      config.TemperaturesConfig

	in  io.Reader
	out io.Writer

	lines   chan string
	replies chan bus.OutboundMessage
}

// Config holds the console dependencies.
type Config struct {
	Bus          *bus.MessageBus
	Sessions     *session.Manager
	Agent        *agent.AgentLoop
	ConfigPath   string
	Temperatures config.TemperaturesConfig
	In           io.Reader
	Out          io.Writer
}

func New(cfg Config) *Console {
	return &Console{
		bus:        cfg.Bus,
		sessions:   cfg.Sessions,
		agent:      cfg.Agent,
		configPath: cfg.ConfigPath,
		temps:      cfg.Temperatures,
		in:         cfg.In,
		out:        cfg.Out,
		replies:    make(chan bus.OutboundMessage, 8),
	}
}

// Run reads user input until exit, EOF, or ctx cancellation. Replies for the
// console turn come back over the bus; reminder firings from the scheduler are
// printed as they arrive. Input is read on its own goroutine so cancellation
// (SIGINT at the prompt) interrupts the read and still saves history.
func (c *Console) Run(ctx context.Context) error {
	c.bus.Subscribe("console", func(msg bus.OutboundMessage) {
		select {
		case c.replies <- msg:
		default:
			slog.Warn("dropping console reply, consumer too slow")
		}
	})
	c.bus.Subscribe("scheduler", func(msg bus.OutboundMessage) {
		fmt.Fprintf(c.out, "\n%s\n", warnColor(msg.Content))
	})

	fmt.Fprintln(c.out, "Hello! I'm your conversational assistant.")
	fmt.Fprintln(c.out, "I can search, write code, read/write files, or just chat.")
	fmt.Fprintf(c.out, "Type %s to see available commands.\n", warnColor("'help'"))

	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case c.lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprintf(c.out, "\n%s", promptColor("You: "))
		line, ok := c.readLine(ctx)
		if !ok {
			c.saveHistory()
			fmt.Fprintln(c.out, okColor("Goodbye!"))
			return ctx.Err()
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		quit, handled := c.runCommand(ctx, strings.ToLower(strings.TrimSpace(line)))
		if quit {
			return nil
		}
		if handled {
			continue
		}

		c.sendAndPrint(ctx, line)
	}
}

// runCommand dispatches the built-in command table. Returns quit=true when the
// loop should end and handled=true when the input was a command.
func (c *Console) runCommand(ctx context.Context, cmd string) (quit, handled bool) {
	switch cmd {
	case "exit", "quit":
		if c.confirm(ctx, "Are you sure you want to exit? (yes/no): ") {
			c.saveHistory()
			fmt.Fprintln(c.out, okColor("Goodbye!"))
			return true, true
		}
		return false, true
	case "help":
		c.showHelp()
		return false, true
	case "save":
		c.saveHistory()
		fmt.Fprintln(c.out, okColor("Chat history saved."))
		return false, true
	case "clear history":
		c.clearHistory(ctx)
		return false, true
	case "run code":
		c.runLastCode(ctx)
		return false, true
	case "settings":
		c.manageSettings(ctx)
		return false, true
	}
	return false, false
}

// sendAndPrint publishes the input on the bus and prints the reply.
func (c *Console) sendAndPrint(ctx context.Context, input string) {
	c.bus.PublishInbound(bus.InboundMessage{
		Source:             "console",
		ChatID:             "default",
		Content:            input,
		SessionKeyOverride: SessionKey,
	})
	fmt.Fprintln(c.out, "Thinking...")

	select {
	case msg := <-c.replies:
		if msg.Kind == "error" {
			fmt.Fprintf(c.out, "\n%s\n", errorColor(msg.Content))
			return
		}
		fmt.Fprintf(c.out, "\n%s\n", replyColor(msg.Content))
	case <-ctx.Done():
	}
}

func (c *Console) showHelp() {
	fmt.Fprintln(c.out, "\n--- Help ---")
	fmt.Fprintln(c.out, "I can search, write code, or just chat.")
	fmt.Fprintf(c.out, "  Type %s or %s to end our conversation.\n", warnColor("'exit'"), warnColor("'quit'"))
	fmt.Fprintf(c.out, "  Type %s to customize me.\n", warnColor("'settings'"))
	fmt.Fprintf(c.out, "  Type %s to manually save your chat.\n", warnColor("'save'"))
	fmt.Fprintf(c.out, "  Type %s to delete our chat.\n", warnColor("'clear history'"))
	fmt.Fprintf(c.out, "  Type %s to execute the last code I wrote.\n", warnColor("'run code'"))
	fmt.Fprintln(c.out, "---")
}

func (c *Console) saveHistory() {
	sess := c.sessions.GetOrCreate(SessionKey)
	if err := c.sessions.Save(sess); err != nil {
		slog.Error("failed to save chat history", "err", err)
		fmt.Fprintln(c.out, errorColor("Failed to save chat history."))
	}
}

func (c *Console) clearHistory(ctx context.Context) {
	if !c.confirm(ctx, "Clear history? Cannot be undone. (yes/no): ") {
		return
	}
	if err := c.sessions.Delete(SessionKey); err != nil {
		fmt.Fprintln(c.out, errorColor("Failed to clear chat history."))
		slog.Error("failed to clear chat history", "err", err)
		return
	}
	fmt.Fprintln(c.out, okColor("Chat history cleared."))
}

func (c *Console) runLastCode(ctx context.Context) {
	fmt.Fprintf(c.out, "\n%s\n", codeColor("Running code..."))
	output, err := c.agent.RunLastCode(ctx, SessionKey)
	if err != nil {
		fmt.Fprintln(c.out, errorColor(err.Error()))
		return
	}
	fmt.Fprintf(c.out, "\n%s\n", codeColor("--- Code Output ---"))
	fmt.Fprintln(c.out, output)
	fmt.Fprintf(c.out, "%s\n", codeColor("-------------------"))
}

func (c *Console) manageSettings(ctx context.Context) {
	fmt.Fprintln(c.out, "\n--- Current Settings ---")
	fmt.Fprintf(c.out, "Conversation Temperature: %v\n", c.temps.Conversation)
	fmt.Fprintf(c.out, "Focused Temperature: %v\n", c.temps.Focused)
	fmt.Fprintln(c.out, "---")

	if !c.confirm(ctx, "Change settings? (yes/no): ") {
		return
	}

	fmt.Fprintf(c.out, "Enter new values (%v to %v).\n", config.TemperatureMin, config.TemperatureMax)
	conv, ok := c.readFloat(ctx, "New Conversation Temp: ")
	if !ok {
		fmt.Fprintln(c.out, errorColor("Invalid input. Settings were not changed."))
		return
	}
	focused, ok := c.readFloat(ctx, "New Focused Temp: ")
	if !ok {
		fmt.Fprintln(c.out, errorColor("Invalid input. Settings were not changed."))
		return
	}

	temps := config.TemperaturesConfig{Conversation: conv, Focused: focused}
	if err := config.SaveTemperatures(c.configPath, temps); err != nil {
		fmt.Fprintf(c.out, "%s\n", errorColor(fmt.Sprintf("Settings were not changed: %v", err)))
		return
	}
	c.temps = temps
	c.agent.SetTemperatures(agent.Temperatures{Conversation: conv, Focused: focused})
	fmt.Fprintln(c.out, okColor("Settings updated successfully."))
}

// confirm prompts with a yellow question and accepts any "y..." answer.
func (c *Console) confirm(ctx context.Context, question string) bool {
	fmt.Fprintf(c.out, "%s", warnColor(question))
	line, ok := c.readLine(ctx)
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

func (c *Console) readFloat(ctx context.Context, prompt string) (float64, bool) {
	fmt.Fprintf(c.out, "%s", warnColor(prompt))
	line, ok := c.readLine(ctx)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readLine waits for the next input line. Not ok on EOF or cancellation.
func (c *Console) readLine(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-c.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}
