// Package agentmgr runs fire-and-forget background LLM tasks that don't
// share history with the owning session, reporting their result back to
// the originating chat. The sweep loop follows the teacher's
// idempotencyCleanupLoop ticker shape.
package agentmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const (
	sweepInterval  = 10 * time.Minute
	stuckAfter     = time.Hour
	completedAfter = time.Hour
)

// Agent is one background task's bookkeeping.
type Agent struct {
	ID          string
	ChatID      string
	Task        string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Result      string
	Err         error
}

// Runner performs the actual LLM call for a task, independent of any
// session history. Satisfied by a closure over internal/llm.Orchestrator.
type Runner func(ctx context.Context, task string) (string, error)

// Transport delivers a background agent's result to its chat. Defined
// here as a narrow interface rather than a concrete dependency, per the
// "never a global singleton" design note — callers inject their own
// transport implementation.
type Transport interface {
	Send(ctx context.Context, chatID, message string) error
}

// Manager tracks running and completed background agents.
type Manager struct {
	run       Runner
	transport Transport
	logger    *slog.Logger

	mu      sync.Mutex
	agents  map[string]*Agent
	cancels map[string]context.CancelFunc

	done chan struct{}
}

// New creates a Manager and starts its sweep loop.
func New(run Runner, transport Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		run:       run,
		transport: transport,
		logger:    logger.With("component", "agentmgr"),
		agents:    make(map[string]*Agent),
		cancels:   make(map[string]context.CancelFunc),
		done:      make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Close stops the sweep loop and cancels every running agent.
func (m *Manager) Close() {
	close(m.done)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
}

// Spawn launches a background agent independently of the caller's
// lifetime, returning its id immediately.
func (m *Manager) Spawn(ctx context.Context, task, chatID string) string {
	id := uuid.NewString()
	agentCtx, cancel := context.WithCancel(context.Background())

	agent := &Agent{
		ID:        id,
		ChatID:    chatID,
		Task:      task,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.agents[id] = agent
	m.cancels[id] = cancel
	m.mu.Unlock()

	go m.runAgent(agentCtx, id)
	return id
}

func (m *Manager) runAgent(ctx context.Context, id string) {
	m.mu.Lock()
	agent := m.agents[id]
	task := agent.Task
	chatID := agent.ChatID
	m.mu.Unlock()

	result, err := m.run(ctx, task)

	m.mu.Lock()
	agent, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return // deleted/cancelled already discarded the result slot
	}
	if agent.Status == StatusCancelled {
		m.mu.Unlock()
		return // cancel() already transitioned status; discard the result
	}
	agent.CompletedAt = time.Now()
	if err != nil {
		agent.Status = StatusFailed
		agent.Err = err
	} else {
		agent.Status = StatusSucceeded
		agent.Result = result
	}
	m.mu.Unlock()

	m.report(chatID, agent)
}

func (m *Manager) report(chatID string, agent *Agent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var msg string
	switch agent.Status {
	case StatusSucceeded:
		msg = fmt.Sprintf("Background task finished: %s", agent.Result)
	case StatusFailed:
		msg = fmt.Sprintf("Background task failed: %v", agent.Err)
	default:
		return
	}
	if err := m.transport.Send(ctx, chatID, msg); err != nil {
		m.logger.Warn("agentmgr: report failed", "agent", agent.ID, "error", err)
	}
}

// Cancel transitions a running agent to cancelled, aborting its context
// and discarding any subsequent result.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agentmgr: agent %s not found", id)
	}
	if agent.Status != StatusRunning {
		return fmt.Errorf("agentmgr: agent %s is not running", id)
	}
	agent.Status = StatusCancelled
	agent.CompletedAt = time.Now()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	return nil
}

// Get returns a snapshot of one agent's state.
func (m *Manager) Get(id string) (Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *agent, true
}

// List returns a snapshot of every tracked agent.
func (m *Manager) List() []Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *a)
	}
	return out
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep reaps agents whose completion was over completedAfter ago, and
// forcibly reaps running agents older than stuckAfter (stuck-agent guard).
func (m *Manager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped int
	for id, agent := range m.agents {
		switch agent.Status {
		case StatusRunning:
			if now.Sub(agent.StartedAt) > stuckAfter {
				if cancel, ok := m.cancels[id]; ok {
					cancel()
				}
				delete(m.agents, id)
				delete(m.cancels, id)
				reaped++
			}
		default:
			if !agent.CompletedAt.IsZero() && now.Sub(agent.CompletedAt) > completedAfter {
				delete(m.agents, id)
				delete(m.cancels, id)
				reaped++
			}
		}
	}
	if reaped > 0 {
		m.logger.Info("agentmgr: swept agents", "count", reaped)
	}
}
