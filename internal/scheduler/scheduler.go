// Package scheduler ticks over the persisted cron job set, dispatching
// due jobs' payloads. The tick loop follows the teacher's
// conflictRefreshLoop/integrityProofLoop shape: a time.Ticker, a select
// over ctx.Done()/ticker.C, and a per-tick timeout around the work.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/akashi-assistant/internal/jobstore"
	"github.com/ashita-ai/akashi-assistant/internal/llm"
	"github.com/ashita-ai/akashi-assistant/internal/session"
)

const (
	defaultTickInterval = 15 * time.Second
	tickTimeout         = 45 * time.Second
)

// Deliverer sends text back to a chat. Satisfied by the transport
// boundary; never a global singleton.
type Deliverer func(ctx context.Context, chatID, text string) error

// Chatter runs one orchestrator turn for a synthesized user message.
// Satisfied by internal/llm.Orchestrator.Chat.
type Chatter func(ctx context.Context, history []llm.Message, systemPrompt, model string, level llm.ThinkingLevel) (llm.ChatResult, error)

// Scheduler dispatches due cron jobs on a tick.
type Scheduler struct {
	store        *jobstore.CronStore
	sessions     *session.Store
	chat         Chatter
	deliver      Deliverer
	systemPrompt func(chatID string) string
	tickInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the default tick cadence. Only values in
// (0, 30s] are applied, per the dispatch-latency contract; any other value
// is ignored and the 15s default is kept.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 && d <= 30*time.Second {
			s.tickInterval = d
		}
	}
}

// New builds a Scheduler. systemPrompt builds the prompt for a chatID at
// dispatch time (so it reflects current workspace/session state).
func New(store *jobstore.CronStore, sessions *session.Store, chat Chatter, deliver Deliverer, systemPrompt func(chatID string) string, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		sessions:     sessions,
		chat:         chat,
		deliver:      deliver,
		systemPrompt: systemPrompt,
		tickInterval: defaultTickInterval,
		logger:       logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore recomputes nextRun for every job at startup, per the job
// store's restore-on-boot contract.
func (s *Scheduler) Restore() error {
	if err := s.store.Restore(time.Now().UTC()); err != nil {
		return fmt.Errorf("scheduler: restore: %w", err)
	}
	return nil
}

// Run ticks until ctx is cancelled, dispatching due jobs each tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
			s.tick(tickCtx)
			cancel()
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.DueJobs(time.Now().UTC())
	if err != nil {
		s.logger.Warn("scheduler: list due jobs failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Info("scheduler: dispatching due jobs", "count", len(due))

	g, gCtx := errgroup.WithContext(ctx)
	for _, job := range due {
		job := job
		g.Go(func() error {
			s.execute(gCtx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) execute(ctx context.Context, job jobstore.CronJob) {
	executedAt := time.Now().UTC()
	defer func() {
		if err := s.store.MarkExecuted(job.ID, executedAt); err != nil {
			s.logger.Warn("scheduler: mark executed failed", "job", job.ID, "error", err)
		}
	}()

	switch job.Payload.Kind {
	case jobstore.PayloadAgentTurn:
		s.executeAgentTurn(ctx, job)
	default:
		s.logger.Warn("scheduler: unknown payload kind", "job", job.ID, "kind", job.Payload.Kind)
	}
}

func (s *Scheduler) executeAgentTurn(ctx context.Context, job jobstore.CronJob) {
	model := s.sessions.Model(job.ChatID)
	prompt := s.systemPrompt(job.ChatID)

	history, _, _ := s.sessions.BuildContextForPrompt(job.ChatID)
	turn := append(toLLMMessages(history), llm.TextMessage(llm.RoleUser, job.Payload.Message))

	result, err := s.chat(ctx, turn, prompt, model, llm.ThinkingOff)
	if err != nil {
		s.logger.Warn("scheduler: job turn failed", "job", job.ID, "error", err)
		return
	}

	s.sessions.AppendMessage(job.ChatID, session.Message{Role: session.RoleUser, Content: job.Payload.Message})
	s.sessions.AppendMessage(job.ChatID, session.Message{Role: session.RoleAssistant, Content: result.Text})

	if err := s.deliver(ctx, job.ChatID, result.Text); err != nil {
		s.logger.Warn("scheduler: deliver failed", "job", job.ID, "error", err)
	}
}

func toLLMMessages(history []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.TextMessage(role, m.Content))
	}
	return out
}
