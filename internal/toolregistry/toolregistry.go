// Package toolregistry is the catalog and dispatcher for tools the LLM
// orchestrator's tool-use loop can call. Schemas are declared with
// github.com/mark3labs/mcp-go/mcp's builders, the same way the teacher
// declares its own MCP tool schemas — reused here purely for their
// JSON-Schema shape, since dispatch itself is a direct in-process
// function call rather than a separate MCP transport.
package toolregistry

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/akashi-assistant/internal/telemetry"
)

// dispatchCounter records one count per tool call, labeled by tool name
// and outcome, for the OTEL metrics pipeline telemetry.Init wires up.
var dispatchCounter = func() metric.Int64Counter {
	c, _ := telemetry.Meter("internal/toolregistry").Int64Counter("tool_dispatch_total")
	return c
}()

const (
	defaultMaxResultLen = 10000
	defaultTimeout      = 30 * time.Second
	execTimeout         = 60 * time.Second
)

// Compression selects the result-shrinking strategy applied after a tool
// call produces output longer than its cap.
type Compression string

const (
	CompressDefault       Compression = "default"
	CompressWebSearch     Compression = "web_search"
	CompressListDirectory Compression = "list_directory"
	CompressHeadOrTail    Compression = "head_or_tail" // read_file (head) / get_session_log (tail)
)

// Func is the dispatch signature every tool implements. It returns the
// formatted result text, or a Go error for a tool-level failure; Dispatch
// turns that error into an "Error: ..." result string, per the
// never-fail-the-caller contract, so Dispatch itself never returns a Go error.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool is one catalog entry: schema, dispatch function, and per-tool
// result/timeout policy.
type Tool struct {
	Schema       mcplib.Tool
	Func         Func
	MaxResultLen int
	Timeout      time.Duration
	Compression  Compression
}

// Registry holds the tool catalog and dispatches calls by name.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the catalog, filling in default MaxResultLen
// and Timeout when unset. Command-execution tools should set Timeout to
// execTimeout explicitly (the 60s ceiling), since the default is 30s.
func (r *Registry) Register(name string, t *Tool) {
	if t.MaxResultLen <= 0 {
		t.MaxResultLen = defaultMaxResultLen
	}
	if t.Timeout <= 0 {
		t.Timeout = defaultTimeout
	}
	if t.Timeout > execTimeout {
		t.Timeout = execTimeout
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Schemas returns the catalog's tool schemas in registration order, for
// handing to the LLM request and for the prompt builder's tool table.
func (r *Registry) Schemas() []mcplib.Tool {
	out := make([]mcplib.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch runs the named tool with args, under the tool's configured
// timeout, and compresses the result per its compression rule. It never
// returns an error: an unknown tool, a timeout, or a panic recovered
// from the tool function all surface as an "Error: ..." result string,
// matching the tool-use loop's "never fails the caller" contract.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	resultCh := make(chan string, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- fmt.Sprintf("Error: tool %q panicked: %v", name, p)
			}
		}()
		out, err := t.Func(callCtx, args)
		if err != nil {
			resultCh <- fmt.Sprintf("Error: %v", err)
			return
		}
		resultCh <- out
	}()

	select {
	case out := <-resultCh:
		outcome := "ok"
		if strings.HasPrefix(out, "Error:") {
			outcome = "error"
		}
		dispatchCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", name), attribute.String("outcome", outcome)))
		return compress(out, t.MaxResultLen, t.Compression)
	case <-callCtx.Done():
		dispatchCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", name), attribute.String("outcome", "timeout")))
		return fmt.Sprintf("Error: tool %q timed out after %s", name, t.Timeout)
	}
}

// compress shrinks out to fit within maxLen using the tool's compression
// rule. Output already within budget is returned unchanged.
func compress(out string, maxLen int, kind Compression) string {
	if len(out) <= maxLen {
		return out
	}

	switch kind {
	case CompressWebSearch:
		return compressWebSearch(out, maxLen)
	case CompressListDirectory:
		return compressListDirectory(out, maxLen)
	case CompressHeadOrTail:
		return compressHeadOrTail(out, maxLen)
	default:
		return compressDefault(out, maxLen)
	}
}

func compressDefault(out string, maxLen int) string {
	const suffix = "... (truncated)"
	if maxLen <= len(suffix) {
		return out[:maxLen]
	}
	return out[:maxLen-len(suffix)] + suffix
}

// compressWebSearch keeps the first 5 numbered entries verbatim and notes
// how many were omitted. Entries are assumed to be newline-separated and
// to start with "N. " or "N) ".
func compressWebSearch(out string, maxLen int) string {
	lines := strings.Split(out, "\n")
	var kept []string
	entries := 0
	for _, line := range lines {
		if entries >= 5 {
			break
		}
		kept = append(kept, line)
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 0 && (trimmed[0] >= '1' && trimmed[0] <= '9') {
			entries++
		}
	}
	omitted := countNumberedEntries(lines) - entries
	result := strings.Join(kept, "\n")
	if omitted > 0 {
		result += fmt.Sprintf("\n(%d more omitted)", omitted)
	}
	if len(result) > maxLen {
		return compressDefault(result, maxLen)
	}
	return result
}

func countNumberedEntries(lines []string) int {
	n := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] >= '1' && trimmed[0] <= '9' {
			n++
		}
	}
	return n
}

// compressListDirectory splits folder lines (ending in "/") from file
// lines, keeps all folders, and keeps the head and tail of the file
// list, fitting within maxLen.
func compressListDirectory(out string, maxLen int) string {
	lines := strings.Split(out, "\n")
	var folders, files []string
	for _, line := range lines {
		if strings.HasSuffix(strings.TrimSpace(line), "/") {
			folders = append(folders, line)
		} else if strings.TrimSpace(line) != "" {
			files = append(files, line)
		}
	}

	budget := maxLen - totalLen(folders) - len("\n... (N more files omitted) ...\n")
	if budget < 0 {
		budget = 0
	}
	head, tail, omitted := headTailWithinBudget(files, budget)

	var b strings.Builder
	for _, f := range folders {
		b.WriteString(f)
		b.WriteString("\n")
	}
	for _, f := range head {
		b.WriteString(f)
		b.WriteString("\n")
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "... (%d more files omitted) ...\n", omitted)
	}
	for _, f := range tail {
		b.WriteString(f)
		b.WriteString("\n")
	}

	result := strings.TrimRight(b.String(), "\n")
	if len(result) > maxLen {
		return compressDefault(result, maxLen)
	}
	return result
}

// compressHeadOrTail preserves the head (files) up to 80% of cap. Callers
// needing tail-preservation for logs pass already-reversed input.
func compressHeadOrTail(out string, maxLen int) string {
	budget := int(float64(maxLen) * 0.8)
	if budget >= len(out) {
		budget = len(out)
	}
	return out[:budget] + "\n... (truncated)"
}

func headTailWithinBudget(files []string, budget int) (head, tail []string, omitted int) {
	if totalLen(files) <= budget {
		return files, nil, 0
	}
	half := budget / 2
	headLen, tailLen := 0, 0
	hi := 0
	for hi < len(files) && headLen+len(files[hi])+1 <= half {
		headLen += len(files[hi]) + 1
		hi++
	}
	ti := len(files)
	for ti > hi && tailLen+len(files[ti-1])+1 <= half {
		tailLen += len(files[ti-1]) + 1
		ti--
	}
	return files[:hi], files[ti:], ti - hi
}

func totalLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
