// Package promptbuilder assembles the system prompt handed to the LLM
// orchestrator in a fixed, deterministic order. There's no templating
// engine here on purpose: the assembly order is a closed sequence of
// string sections with only simple if-branches (onboarding vs. persona),
// the same hand-written-string-literal idiom the teacher uses for its
// MCP tool descriptions.
package promptbuilder

import (
	"fmt"
	"strings"
	"time"
)

// ToolSummary is one row of the tool availability table.
type ToolSummary struct {
	Name        string
	Description string
}

// MemoryResult is one hit from the vector search over older memory.
type MemoryResult struct {
	Source string
	Text   string
	Score  float64
}

// Input carries everything the builder needs, already resolved by the
// caller (assistant.App's buildSystemPrompt, reading from
// workspace/session/memstore).
type Input struct {
	WorkspaceDir string
	Now          time.Time
	Timezone     string
	RuntimeFingerprint string

	Tools []ToolSummary

	OnboardingPrompt string // non-empty replaces the persona block entirely

	Identity      string
	Persona       string
	User          string
	Rules         string
	ToolsNotes    string
	PinnedContext []string
	RecentDaily   string
	LongTermMemory string
	VectorResults  []MemoryResult

	Truncated []string // names of workspace files that were truncated on load
}

const heartbeatSemantics = "If this turn is a periodic heartbeat or briefing check and nothing " +
	"warrants a message to the user, respond with exactly HEARTBEAT_OK and nothing else."

// Build assembles the system prompt in the fixed order: identity preamble,
// tool table, messaging guidance, workspace path, current time, heartbeat
// semantics, runtime fingerprint, then either the onboarding prompt or the
// full persona/user/rules/tools-notes/pinned/recent-daily/memory block,
// then truncation warnings.
func Build(in Input) string {
	var b strings.Builder

	writeSection(&b, identityPreamble())
	writeSection(&b, toolTable(in.Tools))
	writeSection(&b, messagingGuidance())
	writeSection(&b, fmt.Sprintf("Workspace directory: %s", in.WorkspaceDir))
	writeSection(&b, fmt.Sprintf("Current time: %s (%s)", in.Now.Format(time.RFC3339), in.Timezone))
	writeSection(&b, heartbeatSemantics)
	if in.RuntimeFingerprint != "" {
		writeSection(&b, fmt.Sprintf("Runtime: %s", in.RuntimeFingerprint))
	}

	if in.OnboardingPrompt != "" {
		writeSection(&b, in.OnboardingPrompt)
	} else {
		writeSection(&b, in.Identity)
		writeSection(&b, in.Persona)
		writeSection(&b, in.User)
		writeSection(&b, in.Rules)
		writeSection(&b, in.ToolsNotes)
		if len(in.PinnedContext) > 0 {
			writeSection(&b, "Pinned context:\n"+strings.Join(in.PinnedContext, "\n"))
		}
		if in.RecentDaily != "" {
			writeSection(&b, "Recent daily log:\n"+in.RecentDaily)
		}
		if len(in.VectorResults) > 0 {
			writeSection(&b, "Relevant older memory:\n"+formatVectorResults(in.VectorResults))
		}
		writeSection(&b, in.LongTermMemory)
	}

	if len(in.Truncated) > 0 {
		writeSection(&b, fmt.Sprintf("Note: the following workspace files were truncated to fit budget: %s",
			strings.Join(in.Truncated, ", ")))
	}

	return strings.TrimSpace(b.String())
}

// VectorQuery concatenates the last three user messages, truncated to
// roughly 500 chars, as the query string for the memory search step that
// produces Input.VectorResults.
func VectorQuery(lastUserMessages []string) string {
	if len(lastUserMessages) > 3 {
		lastUserMessages = lastUserMessages[len(lastUserMessages)-3:]
	}
	q := strings.Join(lastUserMessages, " ")
	const maxChars = 500
	if len(q) > maxChars {
		q = q[:maxChars]
	}
	return q
}

// VectorSearchTopK and VectorSearchMinScore are the fixed parameters for
// the memory search step feeding Input.VectorResults.
const (
	VectorSearchTopK      = 3
	VectorSearchMinScore  = 0.4
)

func writeSection(b *strings.Builder, section string) {
	section = strings.TrimSpace(section)
	if section == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(section)
}

func identityPreamble() string {
	return "You are a persistent personal assistant with access to a local workspace, " +
		"a scheduler, and a memory store. You run continuously across conversations " +
		"rather than starting fresh each turn."
}

func toolTable(tools []ToolSummary) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func messagingGuidance() string {
	return "Call tools when they would materially improve an answer; otherwise answer directly. " +
		"Keep tool inputs minimal and specific."
}

func formatVectorResults(results []MemoryResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s, score=%.2f] %s", r.Source, r.Score, r.Text)
	}
	return b.String()
}
