package agentmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(map[string]string)}
}

func (f *fakeTransport) Send(ctx context.Context, chatID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[chatID] = message
	return nil
}

func (f *fakeTransport) get(chatID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[chatID]
	return m, ok
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSpawnReportsSuccess(t *testing.T) {
	transport := newFakeTransport()
	run := func(ctx context.Context, task string) (string, error) {
		return "task complete: " + task, nil
	}
	m := New(run, transport, nil)
	defer m.Close()

	id := m.Spawn(context.Background(), "summarize inbox", "chat-1")

	waitFor(t, time.Second, func() bool {
		a, ok := m.Get(id)
		return ok && a.Status == StatusSucceeded
	})

	msg, ok := transport.get("chat-1")
	if !ok {
		t.Fatal("expected a delivered message")
	}
	if msg != "Background task finished: task complete: summarize inbox" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestSpawnReportsFailure(t *testing.T) {
	transport := newFakeTransport()
	run := func(ctx context.Context, task string) (string, error) {
		return "", errors.New("boom")
	}
	m := New(run, transport, nil)
	defer m.Close()

	id := m.Spawn(context.Background(), "broken task", "chat-2")

	waitFor(t, time.Second, func() bool {
		a, ok := m.Get(id)
		return ok && a.Status == StatusFailed
	})

	msg, ok := transport.get("chat-2")
	if !ok || msg == "" {
		t.Fatal("expected a failure message to be delivered")
	}
}

func TestCancelDiscardsResult(t *testing.T) {
	transport := newFakeTransport()
	started := make(chan struct{})
	run := func(ctx context.Context, task string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	m := New(run, transport, nil)
	defer m.Close()

	id := m.Spawn(context.Background(), "long task", "chat-3")
	<-started

	if err := m.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	a, ok := m.Get(id)
	if !ok || a.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %+v ok=%v", a, ok)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := transport.get("chat-3"); ok {
		t.Fatal("expected no report to be delivered for a cancelled agent")
	}
}

func TestCancelUnknownAgentErrors(t *testing.T) {
	m := New(func(ctx context.Context, task string) (string, error) { return "", nil }, newFakeTransport(), nil)
	defer m.Close()

	if err := m.Cancel("missing"); err == nil {
		t.Fatal("expected an error for an unknown agent id")
	}
}

func TestSweepReapsOldCompletedAgents(t *testing.T) {
	transport := newFakeTransport()
	run := func(ctx context.Context, task string) (string, error) { return "done", nil }
	m := New(run, transport, nil)
	defer m.Close()

	id := m.Spawn(context.Background(), "quick", "chat-4")
	waitFor(t, time.Second, func() bool {
		a, ok := m.Get(id)
		return ok && a.Status == StatusSucceeded
	})

	m.mu.Lock()
	m.agents[id].CompletedAt = time.Now().Add(-2 * completedAfter)
	m.mu.Unlock()

	m.sweep()

	if _, ok := m.Get(id); ok {
		t.Fatal("expected the stale completed agent to be reaped")
	}
}
