package assistant

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying config
// defaults. Unexported — callers use the With* functions.
type resolvedOptions struct {
	workspaceRoot   string
	logger          *slog.Logger
	version         string
	transport       Transport
	secrets         SecretStore
	heartbeatPeriod time.Duration
	tools           []ToolInstaller
}

// WithWorkspaceRoot overrides the workspace directory from config
// (ASSISTANT_WORKSPACE_ROOT).
func WithWorkspaceRoot(root string) Option {
	return func(o *resolvedOptions) { o.workspaceRoot = root }
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in status output and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTransport installs the chat-transport delivery boundary used by the
// scheduler, reminder store, agent manager, and heartbeat loops to push
// text back to a conversation outside of a direct reply.
func WithTransport(t Transport) Option {
	return func(o *resolvedOptions) { o.transport = t }
}

// WithSecretStore replaces the default environment-variable-backed
// secret store (e.g. with an OS keychain or vault-backed implementation).
func WithSecretStore(s SecretStore) Option {
	return func(o *resolvedOptions) { o.secrets = s }
}

// WithHeartbeatPeriod overrides the heartbeat/briefing tick interval from
// config (ASSISTANT_HEARTBEAT_PERIOD). Zero leaves the configured period in
// place; a configured period of zero disables the heartbeat loop.
func WithHeartbeatPeriod(d time.Duration) Option {
	return func(o *resolvedOptions) { o.heartbeatPeriod = d }
}

// ToolInstaller registers one or more tools into the catalog at startup.
// New installs the built-in tools of this module's tools package (file I/O,
// session, exec, web search) this way; other tool implementations (weather,
// calendar OAuth, ...) are wired in through WithTools.
type ToolInstaller func(r *Registrar) error

// WithTools installs additional tool implementations beyond the built-in
// catalog.
func WithTools(installers ...ToolInstaller) Option {
	return func(o *resolvedOptions) { o.tools = append(o.tools, installers...) }
}
