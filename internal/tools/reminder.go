package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chattyhq/chatty/internal/scheduler"
)

// ReminderManager is the scheduler surface the tool needs.
type ReminderManager interface {
	Add(schedule scheduler.Schedule, message, sessionKey string) (string, error)
	Remove(id string) error
	List() []scheduler.Reminder
}

// ReminderTool lets the model set, cancel, and list reminders for the current
// conversation.
type ReminderTool struct {
	manager    ReminderManager
	sessionKey string
}

func NewReminderTool(manager ReminderManager, sessionKey string) *ReminderTool {
	return &ReminderTool{manager: manager, sessionKey: sessionKey}
}

func (t *ReminderTool) Name() string { return "remember" }
func (t *ReminderTool) Description() string {
	return "Set, cancel, or list reminders. Schedules: \"at HH:MM\", \"every <duration>\", or a cron expression"
}
func (t *ReminderTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add", "remove", "list"],
				"description": "Action to perform"
			},
			"when": {
				"type": "string",
				"description": "Schedule, e.g. \"at 14:30\", \"every 30m\", \"0 9 * * 1\" (for add)"
			},
			"message": {
				"type": "string",
				"description": "Reminder text (for add)"
			},
			"reminder_id": {
				"type": "string",
				"description": "Reminder ID (for remove)"
			}
		},
		"required": ["action"]
	}`)
}

func (t *ReminderTool) Execute(_ context.Context, params json.RawMessage) (string, error) {
	var p struct {
		Action     string `json:"action"`
		When       string `json:"when"`
		Message    string `json:"message"`
		ReminderID string `json:"reminder_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	switch p.Action {
	case "add":
		if p.When == "" || p.Message == "" {
			return "", fmt.Errorf("when and message are required for add action")
		}
		schedule, err := scheduler.ParseWhen(p.When)
		if err != nil {
			return "", err
		}
		id, err := t.manager.Add(schedule, p.Message, t.sessionKey)
		if err != nil {
			return "", fmt.Errorf("failed to add reminder: %w", err)
		}
		return fmt.Sprintf("Reminder set: %s (%s)", id, p.When), nil

	case "remove":
		if p.ReminderID == "" {
			return "", fmt.Errorf("reminder_id is required for remove action")
		}
		if err := t.manager.Remove(p.ReminderID); err != nil {
			return "", fmt.Errorf("failed to remove reminder: %w", err)
		}
		return fmt.Sprintf("Reminder removed: %s", p.ReminderID), nil

	case "list":
		reminders := t.manager.List()
		if len(reminders) == 0 {
			return "No reminders set.", nil
		}
		var sb strings.Builder
		for _, r := range reminders {
			fmt.Fprintf(&sb, "%s: %q %s %s\n", r.ID, r.Message, r.Schedule.Type, r.Schedule.Expression)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	default:
		return "", fmt.Errorf("invalid action: %s (must be add, remove, or list)", p.Action)
	}
}
