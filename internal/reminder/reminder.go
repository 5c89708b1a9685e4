// Package reminder fires one-shot and recurring reminders into the chat
// transport. One-shot delays beyond the platform's maximum representable
// timer duration are handled with a daily recheck that re-arms once the
// remaining delay fits, per the teacher's pattern of never trusting a
// single long-lived timer across process restarts.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/akashi-assistant/internal/cronexpr"
	"github.com/ashita-ai/akashi-assistant/internal/jobstore"
)

// platformMaxDelay is conservatively below Go's runtime timer ceiling
// (~290 years in principle, but a single OS timer channel misbehaves well
// before that); reminders use 24 days as documented, matching the
// "≈24.8 days" platform limit called out in the contract.
const platformMaxDelay = 24 * 24 * time.Hour

const dailyRecheckInterval = 24 * time.Hour

// Kind tags which variant of a Reminder's schedule is populated.
type Kind string

const (
	KindOnce Kind = "once"
	KindCron Kind = "cron"
)

// Reminder is one persisted reminder entry.
type Reminder struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chatId"`
	Message    string     `json:"message"`
	Kind       Kind       `json:"kind"`
	FireAt     int64      `json:"fireAt,omitempty"`     // once: unix ms
	Expression string     `json:"expression,omitempty"` // cron
	Timezone   string     `json:"timezone,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Fired      bool       `json:"fired"`
}

type reminderDocument struct {
	Version   int        `json:"version"`
	Reminders []Reminder `json:"reminders"`
}

// Deliverer sends a reminder's message to its chat.
type Deliverer func(ctx context.Context, chatID, message string) error

// Store schedules and persists reminders, firing them in-process via
// time.AfterFunc (one-shot) or a cron-driven recheck (recurring).
type Store struct {
	store   *jobstore.Store
	deliver Deliverer
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a reminder store backed by the JSON document at path.
func New(path string, deliver Deliverer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		store:   jobstore.New(path),
		deliver: deliver,
		logger:  logger.With("component", "reminder"),
		timers:  make(map[string]*time.Timer),
	}
}

// Close stops every armed timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
}

// CreateOnce persists and arms a one-shot reminder for fireAt.
func (s *Store) CreateOnce(chatID, message string, fireAt time.Time) (Reminder, error) {
	r := Reminder{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Message:   message,
		Kind:      KindOnce,
		FireAt:    fireAt.UnixMilli(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.persist(r); err != nil {
		return Reminder{}, err
	}
	s.arm(r)
	return r, nil
}

// CreateRecurring persists and arms a cron-driven recurring reminder.
func (s *Store) CreateRecurring(chatID, message, expression, timezone string) (Reminder, error) {
	r := Reminder{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Message:    message,
		Kind:       KindCron,
		Expression: expression,
		Timezone:   timezone,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.persist(r); err != nil {
		return Reminder{}, err
	}
	s.arm(r)
	return r, nil
}

func (s *Store) persist(r Reminder) error {
	var doc reminderDocument
	return s.store.Update(&doc, func() error {
		doc.Version = 1
		doc.Reminders = append(doc.Reminders, r)
		return nil
	})
}

func (s *Store) markFired(id string) error {
	var doc reminderDocument
	return s.store.Update(&doc, func() error {
		for i := range doc.Reminders {
			if doc.Reminders[i].ID == id {
				doc.Reminders[i].Fired = true
				return nil
			}
		}
		return fmt.Errorf("reminder: %s not found", id)
	})
}

// List returns every persisted reminder.
func (s *Store) List() ([]Reminder, error) {
	var doc reminderDocument
	if err := s.store.Read(&doc); err != nil {
		return nil, err
	}
	return doc.Reminders, nil
}

// Delete removes a reminder and stops its timer if armed.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	var doc reminderDocument
	return s.store.Update(&doc, func() error {
		for i := range doc.Reminders {
			if doc.Reminders[i].ID == id {
				doc.Reminders = append(doc.Reminders[:i], doc.Reminders[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("reminder: %s not found", id)
	})
}

// arm installs the in-process timer for a reminder. For a one-shot
// reminder whose delay exceeds platformMaxDelay, a daily recheck timer is
// installed instead, re-arming once the remaining delay is representable.
func (s *Store) arm(r Reminder) {
	if r.Fired {
		return
	}
	switch r.Kind {
	case KindOnce:
		s.armOnce(r)
	case KindCron:
		s.armCronRecheck(r)
	}
}

func (s *Store) armOnce(r Reminder) {
	delay := time.Until(time.UnixMilli(r.FireAt))
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay > platformMaxDelay {
		s.timers[r.ID] = time.AfterFunc(dailyRecheckInterval, func() { s.recheckOnce(r) })
		return
	}
	if delay < 0 {
		delay = 0
	}
	s.timers[r.ID] = time.AfterFunc(delay, func() { s.fireOnce(r) })
}

func (s *Store) recheckOnce(r Reminder) {
	s.armOnce(r)
}

func (s *Store) fireOnce(r Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.deliver(ctx, r.ChatID, r.Message); err != nil {
		s.logger.Warn("reminder: delivery failed", "reminder", r.ID, "error", err)
		return
	}
	if err := s.markFired(r.ID); err != nil {
		s.logger.Warn("reminder: mark fired failed", "reminder", r.ID, "error", err)
	}
	s.mu.Lock()
	delete(s.timers, r.ID)
	s.mu.Unlock()
}

// armCronRecheck arms a timer for the recurring reminder's next cron
// occurrence in its timezone (UTC when Timezone is empty).
func (s *Store) armCronRecheck(r Reminder) {
	loc, err := time.LoadLocation(r.Timezone)
	expr, perr := cronexpr.Parse(r.Expression)
	if err != nil || perr != nil {
		s.logger.Warn("reminder: invalid recurring schedule", "reminder", r.ID, "timezone_error", err, "expression_error", perr)
		return
	}
	next, ok := expr.NextRun(time.Now(), loc)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[r.ID] = time.AfterFunc(time.Until(next), func() { s.recheckCron(r) })
}

func (s *Store) recheckCron(r Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.deliver(ctx, r.ChatID, r.Message); err != nil {
		s.logger.Warn("reminder: recurring delivery failed", "reminder", r.ID, "error", err)
	}
	s.armCronRecheck(r)
}

// Restore loads every persisted reminder, drops past one-shots, and
// rearms the rest. Call once at startup.
func (s *Store) Restore() error {
	all, err := s.List()
	if err != nil {
		return err
	}
	now := time.Now()
	var kept []Reminder
	for _, r := range all {
		if r.Fired {
			continue
		}
		if r.Kind == KindOnce && time.UnixMilli(r.FireAt).Before(now) {
			continue // past one-shot: drop
		}
		kept = append(kept, r)
		s.arm(r)
	}

	var doc reminderDocument
	return s.store.Update(&doc, func() error {
		doc.Version = 1
		doc.Reminders = kept
		return nil
	})
}
