package ctxutil

// TurnMeta carries metadata about the turn currently being processed, for
// background agents and scheduled payloads that need to report back where
// their output came from without threading it through every function.
type TurnMeta struct {
	ChatID  string
	TurnID  string
	Source  string // "user", "scheduler", "heartbeat", "agent"
}
