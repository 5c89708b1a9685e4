package jobstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/akashi-assistant/internal/cronexpr"
)

// ScheduleKind tags which variant of Schedule is populated.
type ScheduleKind string

const (
	ScheduleAt    ScheduleKind = "at"
	ScheduleEvery ScheduleKind = "every"
	ScheduleCron  ScheduleKind = "cron"
)

// Schedule is a tagged union: exactly one of the kind-specific fields is
// meaningful, selected by Kind.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	AtMs int64 `json:"atMs,omitempty"`

	IntervalMs int64  `json:"intervalMs,omitempty"`
	StartMs    *int64 `json:"startMs,omitempty"`

	Expression string `json:"expression,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// PayloadKind tags which variant of Payload is populated.
type PayloadKind string

const (
	PayloadAgentTurn PayloadKind = "agentTurn"
)

// Payload is a tagged union describing what a job does when fired.
type Payload struct {
	Kind    PayloadKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// CronJob is a scheduled job: a schedule, a payload, and run bookkeeping.
type CronJob struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Name      string    `json:"name"`
	Schedule  Schedule  `json:"schedule"`
	Payload   Payload   `json:"payload"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	RunCount  int       `json:"runCount"`
	MaxRuns   *int      `json:"maxRuns,omitempty"`
}

type cronDocument struct {
	Version int       `json:"version"`
	Jobs    []CronJob `json:"jobs"`
}

// CronStore persists CronJobs in the authoritative cron-jobs.json document.
type CronStore struct {
	store *Store
}

// NewCronStore creates a cron job store backed by the JSON document at path.
func NewCronStore(path string) *CronStore {
	return &CronStore{store: New(path)}
}

// resolveTimezone parses the schedule's timezone, defaulting to UTC.
func resolveTimezone(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// computeNextRun derives the next run instant for a job's schedule,
// strictly after now, or nil if the schedule is terminal.
func computeNextRun(sched Schedule, now time.Time) (*time.Time, error) {
	switch sched.Kind {
	case ScheduleAt:
		t := time.UnixMilli(sched.AtMs).UTC()
		if !t.After(now) {
			return nil, nil
		}
		return &t, nil
	case ScheduleEvery:
		if sched.IntervalMs <= 0 {
			return nil, fmt.Errorf("jobstore: every-schedule requires a positive interval")
		}
		start := now
		if sched.StartMs != nil {
			start = time.UnixMilli(*sched.StartMs).UTC()
		}
		interval := time.Duration(sched.IntervalMs) * time.Millisecond
		next := start
		for !next.After(now) {
			next = next.Add(interval)
		}
		return &next, nil
	case ScheduleCron:
		loc, err := resolveTimezone(sched.Timezone)
		if err != nil {
			return nil, fmt.Errorf("jobstore: invalid timezone %q: %w", sched.Timezone, err)
		}
		expr, err := cronexpr.Parse(sched.Expression)
		if err != nil {
			return nil, fmt.Errorf("jobstore: invalid cron expression: %w", err)
		}
		next, ok := expr.NextRun(now, loc)
		if !ok {
			return nil, nil
		}
		return &next, nil
	default:
		return nil, fmt.Errorf("jobstore: unknown schedule kind %q", sched.Kind)
	}
}

// CreateJob validates the schedule, computes the initial nextRun, and
// persists a new enabled job.
func (s *CronStore) CreateJob(chatID, name string, sched Schedule, payload Payload, maxRuns *int) (CronJob, error) {
	now := time.Now().UTC()
	nextRun, err := computeNextRun(sched, now)
	if err != nil {
		return CronJob{}, err
	}

	job := CronJob{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Name:      name,
		Schedule:  sched,
		Payload:   payload,
		Enabled:   true,
		CreatedAt: now,
		NextRun:   nextRun,
		MaxRuns:   maxRuns,
	}

	var doc cronDocument
	err = s.store.Update(&doc, func() error {
		doc.Version = 1
		doc.Jobs = append(doc.Jobs, job)
		return nil
	})
	if err != nil {
		return CronJob{}, err
	}
	return job, nil
}

// ListJobs returns every persisted job.
func (s *CronStore) ListJobs() ([]CronJob, error) {
	var doc cronDocument
	if err := s.store.Read(&doc); err != nil {
		return nil, err
	}
	return doc.Jobs, nil
}

// DueJobs returns enabled jobs whose nextRun is at or before now and whose
// runCount has not reached maxRuns.
func (s *CronStore) DueJobs(now time.Time) ([]CronJob, error) {
	jobs, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	var due []CronJob
	for _, j := range jobs {
		if !j.Enabled || j.NextRun == nil {
			continue
		}
		if j.MaxRuns != nil && j.RunCount >= *j.MaxRuns {
			continue
		}
		if !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

// MarkExecuted atomically increments runCount, sets lastRun, and recomputes
// nextRun (disabling the job if it has reached maxRuns).
func (s *CronStore) MarkExecuted(id string, executedAt time.Time) error {
	var doc cronDocument
	return s.store.Update(&doc, func() error {
		for i := range doc.Jobs {
			j := &doc.Jobs[i]
			if j.ID != id {
				continue
			}
			j.RunCount++
			j.LastRun = &executedAt
			if j.MaxRuns != nil && j.RunCount >= *j.MaxRuns {
				j.Enabled = false
				j.NextRun = nil
				return nil
			}
			next, err := computeNextRun(j.Schedule, executedAt)
			if err != nil {
				return err
			}
			j.NextRun = next
			if next == nil {
				j.Enabled = false
			}
			return nil
		}
		return fmt.Errorf("jobstore: job %s not found", id)
	})
}

// Restore recomputes nextRun for any job whose nextRun is undefined or in
// the past, called once at startup. Recurring jobs (every/cron) advance to
// their next occurrence; one-shot jobs (at) in the past are dropped.
func (s *CronStore) Restore(now time.Time) error {
	var doc cronDocument
	return s.store.Update(&doc, func() error {
		var kept []CronJob
		for _, j := range doc.Jobs {
			if !j.Enabled {
				kept = append(kept, j)
				continue
			}
			if j.NextRun != nil && j.NextRun.After(now) {
				kept = append(kept, j)
				continue
			}
			if j.Schedule.Kind == ScheduleAt {
				continue // past one-shot: drop
			}
			next, err := computeNextRun(j.Schedule, now)
			if err != nil {
				return err
			}
			j.NextRun = next
			if next == nil {
				j.Enabled = false
			}
			kept = append(kept, j)
		}
		doc.Jobs = kept
		return nil
	})
}

// SetEnabled enables or disables a job without touching its schedule.
func (s *CronStore) SetEnabled(id string, enabled bool) error {
	var doc cronDocument
	return s.store.Update(&doc, func() error {
		for i := range doc.Jobs {
			if doc.Jobs[i].ID == id {
				doc.Jobs[i].Enabled = enabled
				return nil
			}
		}
		return fmt.Errorf("jobstore: job %s not found", id)
	})
}

// DeleteJob removes a job by id.
func (s *CronStore) DeleteJob(id string) error {
	var doc cronDocument
	return s.store.Update(&doc, func() error {
		for i := range doc.Jobs {
			if doc.Jobs[i].ID == id {
				doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("jobstore: job %s not found", id)
	})
}
