package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/chattyhq/chatty/internal/bus"
)

// Service schedules reminders with robfig/cron. A firing reminder is pushed
// onto the bus as an inbound message, so the assistant relays it like any
// other conversation turn.
type Service struct {
	scheduler *robfigcron.Cron
	bus       *bus.MessageBus
	storePath string
	entries   map[string]robfigcron.EntryID
	defs      map[string]Reminder
	mu        sync.Mutex
	counter   int
}

func NewService(storePath string, msgBus *bus.MessageBus) *Service {
	return &Service{
		scheduler: robfigcron.New(),
		bus:       msgBus,
		storePath: storePath,
		entries:   make(map[string]robfigcron.EntryID),
		defs:      make(map[string]Reminder),
	}
}

// Start begins the scheduler.
func (s *Service) Start() {
	s.scheduler.Start()
}

// Stop stops the scheduler.
func (s *Service) Stop() {
	s.scheduler.Stop()
}

// Add registers a new reminder. Returns the reminder ID.
func (s *Service) Add(schedule Schedule, message, sessionKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("reminder_%d", s.counter)
	s.counter++

	r := Reminder{
		ID:         id,
		Schedule:   schedule,
		Message:    message,
		SessionKey: sessionKey,
		CreatedAt:  time.Now(),
	}
	if err := s.register(r); err != nil {
		return "", err
	}

	if err := s.saveToDisk(); err != nil {
		slog.Warn("failed to persist reminders", "error", err)
	}

	return id, nil
}

// register arms a reminder under its existing ID. Caller must hold s.mu.
func (s *Service) register(r Reminder) error {
	cronExpr, err := toCronExpr(r.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	entryID, err := s.scheduler.AddFunc(cronExpr, func() {
		s.bus.PublishInbound(bus.InboundMessage{
			Source:             "scheduler",
			ChatID:             r.ID,
			Content:            fmt.Sprintf("[Reminder] %s", r.Message),
			SessionKeyOverride: r.SessionKey,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to register reminder: %w", err)
	}

	s.entries[r.ID] = entryID
	s.defs[r.ID] = r
	return nil
}

// Remove cancels a reminder by ID.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("reminder %q not found", id)
	}

	s.scheduler.Remove(entryID)
	delete(s.entries, id)
	delete(s.defs, id)

	if err := s.saveToDisk(); err != nil {
		slog.Warn("failed to persist reminders after removal", "error", err)
	}

	return nil
}

// List returns all registered reminders, ordered by ID.
func (s *Service) List() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Reminder, 0, len(s.defs))
	for _, r := range s.defs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// LoadFromDisk loads persisted reminders and re-registers them.
func (s *Service) LoadFromDisk() error {
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reminder store: %w", err)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("failed to parse reminder store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range store.Reminders {
		// keep the persisted ID so a remove issued before the restart
		// still targets the same reminder
		if err := s.register(r); err != nil {
			slog.Warn("failed to restore reminder", "id", r.ID, "error", err)
			continue
		}
		var n int
		if _, err := fmt.Sscanf(r.ID, "reminder_%d", &n); err == nil && n >= s.counter {
			s.counter = n + 1
		}
	}
	return nil
}

// saveToDisk persists current reminders. Caller must hold s.mu.
func (s *Service) saveToDisk() error {
	reminders := make([]Reminder, 0, len(s.defs))
	for _, r := range s.defs {
		reminders = append(reminders, r)
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].ID < reminders[j].ID })

	data, err := json.MarshalIndent(Store{Reminders: reminders}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reminder store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	return os.WriteFile(s.storePath, data, 0o644)
}

// toCronExpr converts a Schedule to a robfig/cron expression string.
func toCronExpr(schedule Schedule) (string, error) {
	switch schedule.Type {
	case ScheduleCron:
		return schedule.Expression, nil
	case ScheduleEvery:
		d, err := time.ParseDuration(schedule.Expression)
		if err != nil {
			return "", fmt.Errorf("invalid duration %q: %w", schedule.Expression, err)
		}
		if d < time.Second {
			return "", fmt.Errorf("interval %q too short", schedule.Expression)
		}
		return fmt.Sprintf("@every %s", d), nil
	case ScheduleAt:
		var h, m int
		if _, err := fmt.Sscanf(schedule.Expression, "%d:%d", &h, &m); err != nil {
			return "", fmt.Errorf("invalid time %q, expected HH:MM: %w", schedule.Expression, err)
		}
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return "", fmt.Errorf("time %q out of range", schedule.Expression)
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	default:
		return "", fmt.Errorf("unknown schedule type %q", schedule.Type)
	}
}
