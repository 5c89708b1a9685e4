package session

import (
	"context"
	"testing"
	"time"

	"github.com/ashita-ai/akashi-assistant/internal/ctxutil"
)

func TestAppendMessageAndGetHistory(t *testing.T) {
	s := NewStore(time.Hour, 10, "claude-sonnet-4-5")
	defer s.Close()

	s.AppendMessage("chat-1", Message{Role: RoleUser, Content: "hi"})
	s.AppendMessage("chat-1", Message{Role: RoleAssistant, Content: "hello"})

	hist := s.GetHistory("chat-1")
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	if hist[0].Content != "hi" || hist[1].Content != "hello" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestSetModelAndDefaultModel(t *testing.T) {
	s := NewStore(time.Hour, 10, "claude-sonnet-4-5")
	defer s.Close()

	if got := s.Model("chat-1"); got != "claude-sonnet-4-5" {
		t.Fatalf("expected default model, got %q", got)
	}
	s.SetModel("chat-1", "claude-opus-4")
	if got := s.Model("chat-1"); got != "claude-opus-4" {
		t.Fatalf("expected updated model, got %q", got)
	}
}

func TestPinnedSurvivesCompaction(t *testing.T) {
	s := NewStore(time.Hour, 10, "m")
	defer s.Close()

	s.AppendPinned("chat-1", "remember this")
	for i := 0; i < 10; i++ {
		s.AppendMessage("chat-1", Message{Role: RoleUser, Content: "msg"})
	}

	err := s.Compact("chat-1", func(toSummarize []Message) ([]string, error) {
		return []string{"summary of earlier turns"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	hist := s.GetHistory("chat-1")
	if len(hist) != 5 { // 1 summary + 4 kept verbatim
		t.Fatalf("expected 5 messages after compaction, got %d", len(hist))
	}
	if hist[0].Content != "summary of earlier turns" {
		t.Fatalf("expected summary first, got %+v", hist[0])
	}

	pinned := s.Pinned("chat-1")
	if len(pinned) != 1 || pinned[0] != "remember this" {
		t.Fatalf("expected pinned note to survive, got %+v", pinned)
	}
}

func TestCompactNoOpUnderKeepThreshold(t *testing.T) {
	s := NewStore(time.Hour, 10, "m")
	defer s.Close()

	s.AppendMessage("chat-1", Message{Role: RoleUser, Content: "a"})
	s.AppendMessage("chat-1", Message{Role: RoleUser, Content: "b"})

	called := false
	err := s.Compact("chat-1", func(toSummarize []Message) ([]string, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("expected summarize not to be called when under the keep threshold")
	}
	if len(s.GetHistory("chat-1")) != 2 {
		t.Fatal("expected history unchanged")
	}
}

func TestLRUEvictsOldestOverCapacity(t *testing.T) {
	s := NewStore(time.Hour, 2, "m")
	defer s.Close()

	s.AppendMessage("chat-1", Message{Role: RoleUser, Content: "a"})
	s.AppendMessage("chat-2", Message{Role: RoleUser, Content: "b"})
	s.AppendMessage("chat-3", Message{Role: RoleUser, Content: "c"}) // evicts chat-1

	s.mu.Lock()
	_, stillThere := s.sessions["chat-1"]
	s.mu.Unlock()
	if stillThere {
		t.Fatal("expected chat-1 to be evicted as least recently used")
	}
}

func TestWithCurrentBindsChatID(t *testing.T) {
	var gotID string
	err := WithCurrent(context.Background(), "chat-42", func(ctx context.Context) error {
		gotID = ctxutil.ChatIDFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotID != "chat-42" {
		t.Fatalf("expected chat-42, got %q", gotID)
	}
}
