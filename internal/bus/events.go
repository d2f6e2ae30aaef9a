package bus

import "fmt"

// InboundMessage is a message entering the assistant, either typed at the
// console or fired by the reminder scheduler.
type InboundMessage struct {
	Source             string // "console" or "scheduler"
	ChatID             string // conversation identifier
	Content            string // text content
	SessionKeyOverride string // optional override for session routing
}

// SessionKey returns the routing key for session management.
// Uses SessionKeyOverride if set, otherwise "source:chatID".
func (m InboundMessage) SessionKey() string {
	if m.SessionKeyOverride != "" {
		return m.SessionKeyOverride
	}
	return fmt.Sprintf("%s:%s", m.Source, m.ChatID)
}

// OutboundMessage is a reply to be delivered back to a source.
type OutboundMessage struct {
	Source  string // target source
	ChatID  string // target conversation
	Content string // text content
	Kind    string // "text", "progress", "error"
}
