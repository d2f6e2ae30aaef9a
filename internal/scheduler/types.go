package scheduler

import "time"

// ScheduleType defines how a reminder is scheduled.
type ScheduleType string

const (
	ScheduleAt    ScheduleType = "at"    // specific time of day (e.g. "14:30")
	ScheduleEvery ScheduleType = "every" // interval (e.g. "30m", "2h")
	ScheduleCron  ScheduleType = "cron"  // cron expression (e.g. "0 9 * * 1")
)

type Schedule struct {
	Type       ScheduleType `json:"type"`
	Expression string       `json:"expression"` // cron expr, time, or duration
}

// Reminder is a scheduled message delivered back into the conversation.
type Reminder struct {
	ID         string    `json:"id"`
	Schedule   Schedule  `json:"schedule"`
	Message    string    `json:"message"`
	SessionKey string    `json:"sessionKey"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists reminders to a JSON file.
type Store struct {
	Reminders []Reminder `json:"reminders"`
}
