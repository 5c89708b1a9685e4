// Package ctxutil provides shared context key accessors.
//
// This package exists so every subsystem that needs to know "which
// conversation am I operating on" — the tool registry, the memory store,
// the scheduler's agentTurn payload, the heartbeat loop — can read it off
// the ambient context instead of threading a chatId parameter through
// every call. Callers bind it once per turn with WithChatID; nothing
// downstream constructs its own chatId.
package ctxutil

import "context"

type contextKey string

const (
	keyChatID contextKey = "chat_id"
	keyTurnID contextKey = "turn_id"
)

// WithChatID returns a new context carrying the given chat/conversation id.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, keyChatID, chatID)
}

// ChatIDFromContext extracts the ambient chat id, or "" if none is bound.
func ChatIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyChatID).(string); ok {
		return v
	}
	return ""
}

// WithTurnID returns a new context carrying the given turn id, used to
// correlate log lines and spans for a single orchestrator iteration chain.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, keyTurnID, turnID)
}

// TurnIDFromContext extracts the ambient turn id, or "" if none is bound.
func TurnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyTurnID).(string); ok {
		return v
	}
	return ""
}
