package assistant

import "context"

// Transport delivers assistant-originated text to a chat: scheduled job
// output, reminders, background-agent results, and heartbeat/briefing
// turns. Implemented by the chat-transport frontend, which lives outside
// this module's scope — the core never holds a concrete transport, only
// this interface, so it's never a global singleton.
type Transport interface {
	Send(ctx context.Context, chatID, text string) error
}

// SecretStore resolves a named secret (API keys, OAuth tokens for tool
// implementations) from wherever the host process keeps them. The default
// implementation reads environment variables; a host may substitute an OS
// keychain or vault-backed implementation without this module knowing.
type SecretStore interface {
	Get(name string) (string, error)
}
