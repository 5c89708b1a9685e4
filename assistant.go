// Package assistant is the public API for embedding the personal
// assistant core: conversation orchestration, scheduling, memory
// retrieval, and background agents, behind one App.
//
// Hosts (chat-transport frontends, CLIs, onboarding wizards) construct an
// App via New, supply a Transport for out-of-band delivery, and call
// HandleMessage per incoming chat turn. New starts the session-eviction
// and agent-sweep loops; Run restores persisted jobs and reminders and
// starts the scheduler and heartbeat loops; Shutdown stops them all.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/akashi-assistant/internal/agentmgr"
	"github.com/ashita-ai/akashi-assistant/internal/config"
	"github.com/ashita-ai/akashi-assistant/internal/ctxutil"
	"github.com/ashita-ai/akashi-assistant/internal/heartbeat"
	"github.com/ashita-ai/akashi-assistant/internal/jobstore"
	"github.com/ashita-ai/akashi-assistant/internal/llm"
	"github.com/ashita-ai/akashi-assistant/internal/memstore"
	"github.com/ashita-ai/akashi-assistant/internal/promptbuilder"
	"github.com/ashita-ai/akashi-assistant/internal/reminder"
	"github.com/ashita-ai/akashi-assistant/internal/scheduler"
	"github.com/ashita-ai/akashi-assistant/internal/secrets"
	"github.com/ashita-ai/akashi-assistant/internal/service/embedding"
	"github.com/ashita-ai/akashi-assistant/internal/session"
	"github.com/ashita-ai/akashi-assistant/internal/telemetry"
	"github.com/ashita-ai/akashi-assistant/internal/tokenest"
	"github.com/ashita-ai/akashi-assistant/internal/toolregistry"
	"github.com/ashita-ai/akashi-assistant/internal/warmup"
	"github.com/ashita-ai/akashi-assistant/internal/workspace"
	builtintools "github.com/ashita-ai/akashi-assistant/tools"
)

// defaultContextWindow is the token budget the orchestrator computes
// against when a model-specific window isn't known.
const defaultContextWindow = 200000

// compactTokenThreshold triggers automatic history compaction once a
// conversation's estimated token footprint crosses it, independent of
// the "/compact" command a user can issue on demand.
const compactTokenThreshold = 6000

// noopTransport is used when the host supplies no Transport; scheduled
// output, reminders, and agent reports are simply dropped with a log line.
type noopTransport struct{ logger *slog.Logger }

func (t noopTransport) Send(ctx context.Context, chatID, text string) error {
	t.logger.Warn("assistant: no transport configured, dropping message", "chat", chatID)
	return nil
}

// App wires together the workspace store, memory store, embedding
// engine, session state, tool registry, LLM orchestrator, and the
// scheduler/reminder/agent-manager/heartbeat/warmup background subsystems.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	version  string
	otelDone telemetry.Shutdown

	workspace *workspace.Store
	memory    *memstore.Store
	embedder  *embedding.Engine
	sessions  *session.Store
	tools     *toolregistry.Registry
	secrets   SecretStore
	transport Transport

	client       *llm.Client
	orchestrator *llm.Orchestrator

	cronStore *jobstore.CronStore
	scheduler *scheduler.Scheduler
	reminders *reminder.Store
	agents    *agentmgr.Manager
	warmup    *warmup.Coordinator

	heartbeats []*heartbeat.Loop

	cancel context.CancelFunc
}

// New constructs a ready-to-run App: it loads configuration, opens the
// workspace and memory stores, builds the tool catalog, and wires the
// orchestrator and background subsystems. The session store's eviction
// sweep and the agent manager's sweep loop start here; the scheduler and
// heartbeat loops start only when Run is called.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = godotenv.Load() // non-fatal; production deployments won't have a .env file

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("assistant: load config: %w", err)
	}
	if o.workspaceRoot != "" {
		cfg.WorkspaceRoot = o.workspaceRoot
	}
	if o.heartbeatPeriod > 0 {
		cfg.HeartbeatPeriod = o.heartbeatPeriod
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("assistant starting", "version", version, "workspace", cfg.WorkspaceRoot)

	otelDone, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("assistant: telemetry: %w", err)
	}

	ws, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		_ = otelDone(context.Background())
		return nil, fmt.Errorf("assistant: workspace: %w", err)
	}

	mem, err := memstore.Open(filepath.Join(cfg.WorkspaceRoot, "memory", ".vector-store.db"))
	if err != nil {
		_ = otelDone(context.Background())
		return nil, fmt.Errorf("assistant: memstore: %w", err)
	}

	provider := newEmbeddingProvider(cfg, logger)
	embedder := embedding.NewEngine(provider)

	sessions := session.NewStore(cfg.SessionTTL, cfg.SessionCapacity, cfg.AnthropicModel)

	secretStore := o.secrets
	if secretStore == nil {
		secretStore = secrets.EnvStore{}
	}

	transport := o.transport
	if transport == nil {
		transport = noopTransport{logger: logger}
	}

	tools := toolregistry.New()
	builtins := []ToolInstaller{
		builtintools.FileTools(cfg.WorkspaceRoot),
		builtintools.SessionTools(sessions),
		builtintools.ExecTools(cfg.WorkspaceRoot),
		builtintools.WebSearchTools(webSearchProvider(secretStore)),
	}
	for _, install := range append(builtins, o.tools...) {
		if err := install(tools); err != nil {
			mem.Close()
			_ = otelDone(context.Background())
			return nil, fmt.Errorf("assistant: install tools: %w", err)
		}
	}

	client := llm.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL)

	app := &App{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		otelDone:  otelDone,
		workspace: ws,
		memory:    mem,
		embedder:  embedder,
		sessions:  sessions,
		tools:     tools,
		secrets:   secretStore,
		transport: transport,
		client:    client,
	}

	app.orchestrator = llm.NewOrchestrator(client, toolSchemas(tools), app.dispatchTool, defaultContextWindow)

	app.cronStore = jobstore.NewCronStore(filepath.Join(cfg.WorkspaceRoot, "cron-jobs.json"))
	app.scheduler = scheduler.New(app.cronStore, sessions, app.chat, app.deliver, app.buildSystemPrompt, logger, scheduler.WithTickInterval(cfg.SchedulerTickInterval))

	app.reminders = reminder.New(filepath.Join(cfg.WorkspaceRoot, "reminders.json"), app.deliver, logger)

	app.agents = agentmgr.New(app.runBackgroundAgent, transportAdapter{app}, logger)

	app.warmup = warmup.New([]warmup.Task{
		{Name: "embedding_model", Run: func(ctx context.Context) error { return embedder.Preload(ctx) }},
		{Name: "workspace_preload", Run: func(ctx context.Context) error { _, err := ws.Load(); return err }},
		{Name: "memory_chunk_preload", Run: app.preloadMemoryChunks},
	})

	if cfg.HeartbeatPeriod > 0 {
		// Heartbeat loops are per-chat; hosts register chats as sessions are
		// created. Without a known chat at startup, the loop list stays
		// empty until RegisterHeartbeat is called for a chatID.
	}

	return app, nil
}

// transportAdapter satisfies agentmgr.Transport by delegating to the
// App's configured Transport.
type transportAdapter struct{ app *App }

func (t transportAdapter) Send(ctx context.Context, chatID, message string) error {
	return t.app.transport.Send(ctx, chatID, message)
}

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "openai":
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
	default:
		logger.Info("assistant: embedding provider set to noop", "configured", cfg.EmbeddingProvider)
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
}

// webSearchProvider resolves web_search against Brave Search when a key
// is available from the configured SecretStore, falling back to a stub
// that tells the model the tool isn't configured rather than failing.
func webSearchProvider(secretStore SecretStore) builtintools.SearchProvider {
	key, err := secretStore.Get("BRAVE_API_KEY")
	if err != nil || key == "" {
		return builtintools.StubSearchProvider
	}
	return builtintools.BraveSearchProvider(key)
}

func toolSchemas(r *toolregistry.Registry) []llm.ToolSchema {
	schemas := r.Schemas()
	out := make([]llm.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llm.ToolSchema{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return out
}

// dispatchTool adapts toolregistry.Registry.Dispatch to llm.ToolExecutor.
func (a *App) dispatchTool(ctx context.Context, name string, args map[string]any) string {
	return a.tools.Dispatch(ctx, name, args)
}

// chat adapts llm.Orchestrator.Chat to the scheduler's Chatter signature.
func (a *App) chat(ctx context.Context, history []llm.Message, systemPrompt, model string, level llm.ThinkingLevel) (llm.ChatResult, error) {
	return a.orchestrator.Chat(ctx, history, systemPrompt, model, level)
}

// deliver adapts the configured Transport to the scheduler/reminder
// Deliverer signature.
func (a *App) deliver(ctx context.Context, chatID, text string) error {
	return a.transport.Send(ctx, chatID, text)
}

func (a *App) preloadMemoryChunks(ctx context.Context) error {
	ws, err := a.workspace.Load()
	if err != nil {
		return fmt.Errorf("assistant: preload workspace for memory: %w", err)
	}
	if ws.Memory == nil {
		return nil
	}
	chunks := memstore.SplitIntoChunks("MEMORY.md", *ws.Memory)
	if len(chunks) == 0 {
		return nil
	}
	return a.memory.UpsertChunks(ctx, "MEMORY.md", chunks, time.Now(), a.embedder.EmbedChunks)
}

// HandleMessage runs one conversation turn: it builds the system prompt
// from workspace, session, and memory state, drives the tool-use loop,
// and records the exchange in session history. "/compact" triggers
// history compaction directly instead of reaching the model; otherwise
// compaction also runs automatically once the estimated token footprint
// of the conversation crosses compactTokenThreshold.
func (a *App) HandleMessage(ctx context.Context, chatID, text string) (string, error) {
	if strings.TrimSpace(text) == "/compact" {
		a.sessions.AppendMessage(chatID, session.Message{Role: session.RoleUser, Content: text})
		reply, err := a.compact(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("assistant: handle message: %w", err)
		}
		a.sessions.AppendMessage(chatID, session.Message{Role: session.RoleAssistant, Content: reply})
		return reply, nil
	}

	var result llm.ChatResult
	err := session.WithCurrent(ctx, chatID, func(ctx context.Context) error {
		a.sessions.AppendMessage(chatID, session.Message{Role: session.RoleUser, Content: text})

		history, _, model := a.sessions.BuildContextForPrompt(chatID)
		prompt := a.buildSystemPrompt(chatID)

		if tokenest.EstimateMessages(toEstimatorMessages(history))+tokenest.Estimate(prompt) > compactTokenThreshold {
			if _, err := a.compact(ctx, chatID); err != nil {
				a.logger.Warn("assistant: automatic history compaction failed", "chat", chatID, "error", err)
			} else {
				history, _, model = a.sessions.BuildContextForPrompt(chatID)
			}
		}
		turn := toLLMHistory(history)

		var chatErr error
		result, chatErr = a.orchestrator.Chat(ctx, turn, prompt, model, llm.ThinkingLow)
		return chatErr
	})
	if err != nil {
		return "", fmt.Errorf("assistant: handle message: %w", err)
	}

	a.sessions.AppendMessage(chatID, session.Message{Role: session.RoleAssistant, Content: result.Text})
	return result.Text, nil
}

// compact runs session history compaction for chatID, summarizing the
// trimmed messages with a dedicated (non-tool-use) model call.
func (a *App) compact(ctx context.Context, chatID string) (string, error) {
	before, _, _ := a.sessions.BuildContextForPrompt(chatID)
	if err := a.sessions.Compact(chatID, a.summarizeForCompaction(ctx)); err != nil {
		return "", fmt.Errorf("compact history: %w", err)
	}
	after, _, _ := a.sessions.BuildContextForPrompt(chatID)
	if len(after) >= len(before) {
		return "Nothing to compact yet.", nil
	}
	return "Compacted conversation history.", nil
}

// summarizeForCompaction asks the model to reduce the given messages to
// a handful of standalone summary lines, satisfying session.Summarizer.
func (a *App) summarizeForCompaction(ctx context.Context) session.Summarizer {
	return func(toSummarize []session.Message) ([]string, error) {
		if len(toSummarize) == 0 {
			return nil, nil
		}
		var transcript strings.Builder
		for _, m := range toSummarize {
			fmt.Fprintf(&transcript, "[%s] %s\n", m.Role, m.Content)
		}
		const prompt = "Summarize the conversation excerpt below into a short list of " +
			"standalone facts or decisions worth remembering later. One per line, no " +
			"preamble, no numbering."
		result, err := a.orchestrator.Chat(ctx,
			[]llm.Message{llm.TextMessage(llm.RoleUser, transcript.String())},
			prompt, a.cfg.AnthropicModel, llm.ThinkingOff)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(result.Text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	}
}

// toEstimatorMessages adapts session history to tokenest's minimal
// message shape.
func toEstimatorMessages(history []session.Message) []tokenest.Message {
	out := make([]tokenest.Message, len(history))
	for i, m := range history {
		out[i] = tokenest.Message{Content: m.Content}
	}
	return out
}

func toLLMHistory(history []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.TextMessage(role, m.Content))
	}
	return out
}

// buildSystemPrompt assembles the deterministic system prompt for chatID
// per internal/promptbuilder's fixed section order.
func (a *App) buildSystemPrompt(chatID string) string {
	ws, err := a.workspace.Load()
	if err != nil {
		a.logger.Warn("assistant: workspace load failed", "error", err)
		ws = workspace.Workspace{}
	}

	history, pinned, _ := a.sessions.BuildContextForPrompt(chatID)

	recentUser := lastUserTexts(history, 3)
	var memResults []promptbuilder.MemoryResult
	if query := promptbuilder.VectorQuery(recentUser); query != "" {
		queryVec, err := a.embedder.EmbedQuery(context.Background(), query)
		if err == nil {
			hits, err := a.memory.Search(context.Background(), queryVec, promptbuilder.VectorSearchTopK, promptbuilder.VectorSearchMinScore, memstore.Filters{})
			if err == nil {
				for _, h := range hits {
					memResults = append(memResults, promptbuilder.MemoryResult{Source: h.Source, Text: h.Text, Score: h.Score})
				}
			}
		}
	}

	var recentDaily string
	if s, err := a.workspace.ListRecentDaily(3); err == nil {
		recentDaily = s
	}

	var onboarding string
	if ws.Bootstrap != nil {
		onboarding = *ws.Bootstrap
	}

	in := promptbuilder.Input{
		WorkspaceDir:       a.cfg.WorkspaceRoot,
		Now:                time.Now(),
		Timezone:           time.Local.String(),
		RuntimeFingerprint: a.version,
		Tools:              toolSummaries(a.tools),
		OnboardingPrompt:   onboarding,
		Identity:           derefOr(ws.Identity),
		Persona:            derefOr(ws.Soul),
		User:               derefOr(ws.User),
		Rules:              derefOr(ws.Agents),
		ToolsNotes:         derefOr(ws.Tools),
		PinnedContext:      pinned,
		RecentDaily:        recentDaily,
		LongTermMemory:     derefOr(ws.Memory),
		VectorResults:      memResults,
	}
	return promptbuilder.Build(in)
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lastUserTexts(history []session.Message, n int) []string {
	var out []string
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == session.RoleUser {
			out = append([]string{history[i].Content}, out...)
		}
	}
	return out
}

func toolSummaries(r *toolregistry.Registry) []promptbuilder.ToolSummary {
	schemas := r.Schemas()
	out := make([]promptbuilder.ToolSummary, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, promptbuilder.ToolSummary{Name: s.Name, Description: s.Description})
	}
	return out
}

// SpawnAgent launches a fire-and-forget background LLM task independent
// of chatID's session history, reporting its result back to chatID.
func (a *App) SpawnAgent(ctx context.Context, task, chatID string) string {
	return a.agents.Spawn(ctx, task, chatID)
}

// CancelAgent aborts a running background agent.
func (a *App) CancelAgent(id string) error {
	return a.agents.Cancel(id)
}

func (a *App) runBackgroundAgent(ctx context.Context, task string) (string, error) {
	result, err := a.orchestrator.Chat(ctx, []llm.Message{llm.TextMessage(llm.RoleUser, task)}, "You are completing a background task independently; reply with the final result only.", a.cfg.AnthropicModel, llm.ThinkingOff)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// RegisterHeartbeat starts a periodic heartbeat/briefing loop for chatID,
// active once Run is called.
func (a *App) RegisterHeartbeat(chatID string, kind heartbeat.Kind) {
	if a.cfg.HeartbeatPeriod <= 0 {
		return
	}
	loop := heartbeat.New(chatID, kind, a.cfg.HeartbeatPeriod, a.heartbeatTurn, a.deliver, a.logger)
	a.heartbeats = append(a.heartbeats, loop)
}

func (a *App) heartbeatTurn(ctx context.Context, chatID, message string) (string, error) {
	return a.HandleMessage(ctx, chatID, message)
}

// Warmup runs the idempotent startup preload sequence (embedding model
// load, workspace preload, memory-chunk preload) and returns its status.
func (a *App) Warmup(ctx context.Context) WarmupStatus {
	status := a.warmup.Warmup(ctx)
	return WarmupStatus{OK: status.OK, Summary: status.Summary()}
}

// Run starts the scheduler, reminder restore, and heartbeat loops, and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.scheduler.Restore(); err != nil {
		a.logger.Warn("assistant: scheduler restore failed", "error", err)
	}
	if err := a.reminders.Restore(); err != nil {
		a.logger.Warn("assistant: reminder restore failed", "error", err)
	}

	go a.scheduler.Run(runCtx)
	for _, loop := range a.heartbeats {
		go loop.Run(runCtx)
	}

	<-runCtx.Done()
	return a.Shutdown(context.Background())
}

// Shutdown stops background loops and releases held resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("assistant shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	a.agents.Close()
	a.reminders.Close()
	a.sessions.Close()
	_ = a.memory.Close()
	_ = a.otelDone(context.Background())
	a.logger.Info("assistant stopped")
	return nil
}

// currentChatID reads the ambient chatID bound by session.WithCurrent,
// for tool implementations that need to discover their conversation.
func currentChatID(ctx context.Context) string {
	return ctxutil.ChatIDFromContext(ctx)
}
