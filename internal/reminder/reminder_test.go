package reminder

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCreateOnceFiresAndMarksDelivered(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	deliver := func(ctx context.Context, chatID, message string) error {
		mu.Lock()
		delivered = append(delivered, message)
		mu.Unlock()
		return nil
	}

	s := New(filepath.Join(t.TempDir(), "reminders.json"), deliver, nil)
	defer s.Close()

	_, err := s.CreateOnce("chat-1", "stand up", time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("create once: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(delivered)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != "stand up" {
		t.Fatalf("expected one delivery of %q, got %v", "stand up", delivered)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || !all[0].Fired {
		t.Fatalf("expected the reminder to be marked fired, got %+v", all)
	}
}

func TestRestoreDropsPastOneShotAndRearmsFuture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	deliver := func(ctx context.Context, chatID, message string) error { return nil }

	s := New(path, deliver, nil)
	_, err := s.CreateOnce("chat-1", "past", time.Now().Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("create once: %v", err)
	}
	_, err = s.CreateOnce("chat-1", "future", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create once: %v", err)
	}
	s.Close() // simulate process restart before the first reminder fires

	time.Sleep(600 * time.Millisecond) // first reminder's fireAt is now in the past

	s2 := New(path, deliver, nil)
	defer s2.Close()
	if err := s2.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}

	remaining, err := s2.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Message != "future" {
		t.Fatalf("expected only the future reminder to survive restore, got %+v", remaining)
	}
}

func TestDeleteStopsArmedTimer(t *testing.T) {
	var mu sync.Mutex
	fired := false
	deliver := func(ctx context.Context, chatID, message string) error {
		mu.Lock()
		fired = true
		mu.Unlock()
		return nil
	}

	s := New(filepath.Join(t.TempDir(), "reminders.json"), deliver, nil)
	defer s.Close()

	r, err := s.CreateOnce("chat-1", "cancel me", time.Now().Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("create once: %v", err)
	}
	if err := s.Delete(r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatal("expected deleted reminder not to fire")
	}
}
