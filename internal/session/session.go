// Package session holds per-conversation state: message history, the
// active model, and pinned notes that survive compaction. Sessions evict
// by TTL or by an LRU cap, mirroring the teacher's GrantCache eviction
// idiom (background ticker sweeping expired entries under a mutex).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ashita-ai/akashi-assistant/internal/ctxutil"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultCapacity     = 100
	evictSweepInterval  = time.Minute
	keepOnCompact       = 4
	maxSummaryChunks    = 3
)

// Role distinguishes who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// Session is one conversation's mutable state.
type Session struct {
	ChatID       string
	Model        string
	History      []Message
	Pinned       []string
	LastAccessed time.Time
	CreatedAt    time.Time
}

// Store holds all active sessions under a single mutex, evicting by TTL
// or LRU cap.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // most-recently-accessed last
	ttl      time.Duration
	capacity int
	defaultModel string

	done chan struct{}
}

// NewStore creates a session store with the given TTL and LRU capacity.
// Zero values fall back to the defaults (24h, 100 sessions).
func NewStore(ttl time.Duration, capacity int, defaultModel string) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	s := &Store{
		sessions:     make(map[string]*Session),
		ttl:          ttl,
		capacity:     capacity,
		defaultModel: defaultModel,
		done:         make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

// Close stops the background eviction sweep.
func (s *Store) Close() {
	close(s.done)
}

func (s *Store) evictLoop() {
	ticker := time.NewTicker(evictSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccessed) > s.ttl {
			delete(s.sessions, id)
			s.removeFromOrder(id)
		}
	}
}

// getOrCreate returns the session for chatID, creating it if absent, and
// marks it as just accessed (moving it to the back of the LRU order).
// Callers must hold s.mu.
func (s *Store) getOrCreate(chatID string) *Session {
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &Session{
			ChatID:       chatID,
			Model:        s.defaultModel,
			CreatedAt:    time.Now(),
			LastAccessed: time.Now(),
		}
		s.sessions[chatID] = sess
		s.order = append(s.order, chatID)
		s.evictOverCapacityLocked()
	} else {
		sess.LastAccessed = time.Now()
		s.touchLocked(chatID)
	}
	return sess
}

func (s *Store) touchLocked(chatID string) {
	s.removeFromOrder(chatID)
	s.order = append(s.order, chatID)
}

func (s *Store) removeFromOrder(chatID string) {
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Store) evictOverCapacityLocked() {
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.sessions, oldest)
	}
}

// GetHistory returns a copy of the chat's message history.
func (s *Store) GetHistory(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	out := make([]Message, len(sess.History))
	copy(out, sess.History)
	return out
}

// AppendMessage adds a message to the chat's history.
func (s *Store) AppendMessage(chatID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	sess.History = append(sess.History, msg)
}

// SetModel sets the active model for a chat.
func (s *Store) SetModel(chatID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	sess.Model = model
}

// Model returns the active model for a chat.
func (s *Store) Model(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(chatID).Model
}

// AppendPinned adds a note that survives history compaction.
func (s *Store) AppendPinned(chatID, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	sess.Pinned = append(sess.Pinned, note)
}

// Pinned returns a copy of the chat's pinned notes.
func (s *Store) Pinned(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	out := make([]string, len(sess.Pinned))
	copy(out, sess.Pinned)
	return out
}

// BuildContextForPrompt returns the data a prompt builder needs: history,
// pinned notes, and active model, in one consistent snapshot.
func (s *Store) BuildContextForPrompt(chatID string) (history []Message, pinned []string, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(chatID)
	history = make([]Message, len(sess.History))
	copy(history, sess.History)
	pinned = make([]string, len(sess.Pinned))
	copy(pinned, sess.Pinned)
	return history, pinned, sess.Model
}

// Summarizer produces up to maxSummaryChunks assistant-authored summary
// messages standing in for the compacted-away history.
type Summarizer func(toSummarize []Message) ([]string, error)

// Compact keeps the last keepOnCompact messages verbatim and replaces
// everything before them with summaries produced by summarize. Pinned
// notes are untouched.
func (s *Store) Compact(chatID string, summarize Summarizer) error {
	s.mu.Lock()
	sess := s.getOrCreate(chatID)
	if len(sess.History) <= keepOnCompact {
		s.mu.Unlock()
		return nil
	}
	toSummarize := make([]Message, len(sess.History)-keepOnCompact)
	copy(toSummarize, sess.History[:len(sess.History)-keepOnCompact])
	kept := make([]Message, keepOnCompact)
	copy(kept, sess.History[len(sess.History)-keepOnCompact:])
	s.mu.Unlock()

	summaries, err := summarize(toSummarize)
	if err != nil {
		return err
	}
	if len(summaries) > maxSummaryChunks {
		summaries = summaries[:maxSummaryChunks]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess = s.getOrCreate(chatID)
	newHistory := make([]Message, 0, len(summaries)+len(kept))
	for _, sum := range summaries {
		newHistory = append(newHistory, Message{Role: RoleAssistant, Content: sum, At: time.Now()})
	}
	newHistory = append(newHistory, kept...)
	sess.History = newHistory
	return nil
}

// WithCurrent binds chatID into ctx as the ambient current conversation
// and runs fn, so tool implementations can discover the conversation
// they're running under without it being threaded through every call.
func WithCurrent(ctx context.Context, chatID string, fn func(context.Context) error) error {
	return fn(ctxutil.WithChatID(ctx, chatID))
}
