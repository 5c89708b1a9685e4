package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashita-ai/akashi-assistant/internal/jobstore"
	"github.com/ashita-ai/akashi-assistant/internal/llm"
	"github.com/ashita-ai/akashi-assistant/internal/session"
)

func TestTickDispatchesDueJobAndMarksExecuted(t *testing.T) {
	store := jobstore.NewCronStore(filepath.Join(t.TempDir(), "cron-jobs.json"))
	job, err := store.CreateJob("chat-1", "daily", jobstore.Schedule{Kind: jobstore.ScheduleAt, AtMs: time.Now().Add(50 * time.Millisecond).UnixMilli()}, jobstore.Payload{Kind: jobstore.PayloadAgentTurn, Message: "good morning"}, nil)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	_ = job

	sessions := session.NewStore(0, 0, "test-model")
	defer sessions.Close()

	var mu sync.Mutex
	var delivered string
	var chatCalled bool

	chatter := func(ctx context.Context, history []llm.Message, systemPrompt, model string, level llm.ThinkingLevel) (llm.ChatResult, error) {
		mu.Lock()
		chatCalled = true
		mu.Unlock()
		return llm.ChatResult{Text: "morning briefing"}, nil
	}
	deliverer := func(ctx context.Context, chatID, text string) error {
		mu.Lock()
		delivered = text
		mu.Unlock()
		return nil
	}

	sched := New(store, sessions, chatter, deliverer, func(chatID string) string { return "system" }, nil)
	// A one-shot created with a past instant is terminal (no nextRun), so the
	// job is created just ahead of now and the test waits until it is due.
	time.Sleep(100 * time.Millisecond)
	sched.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if !chatCalled {
		t.Fatal("expected the chatter to be invoked for the due job")
	}
	if delivered != "morning briefing" {
		t.Fatalf("expected delivery of %q, got %q", "morning briefing", delivered)
	}

	due, err := store.DueJobs(time.Now().UTC())
	if err != nil {
		t.Fatalf("due jobs: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected the one-shot job to no longer be due after execution, got %+v", due)
	}
}

func TestTickSkipsWhenNoJobsDue(t *testing.T) {
	store := jobstore.NewCronStore(filepath.Join(t.TempDir(), "cron-jobs.json"))
	sessions := session.NewStore(0, 0, "test-model")
	defer sessions.Close()

	called := false
	chatter := func(ctx context.Context, history []llm.Message, systemPrompt, model string, level llm.ThinkingLevel) (llm.ChatResult, error) {
		called = true
		return llm.ChatResult{}, nil
	}
	sched := New(store, sessions, chatter, func(ctx context.Context, chatID, text string) error { return nil }, func(chatID string) string { return "" }, nil)
	sched.tick(context.Background())

	if called {
		t.Fatal("expected no chat call when nothing is due")
	}
}
