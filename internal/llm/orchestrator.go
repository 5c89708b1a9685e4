package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/akashi-assistant/internal/tokenest"
)

const maxIterationsDefault = 10

var tracer = otel.Tracer("internal/llm")

// ToolExecutor runs one tool call and returns its (already compressed)
// result text. Implemented by internal/toolregistry.Registry.Dispatch.
type ToolExecutor func(ctx context.Context, name string, args map[string]any) string

// ToolCallSummary is a short record of one tool invocation within a turn.
type ToolCallSummary struct {
	Name   string
	Input  string // truncated to 200 chars
	Output string // truncated to 500 chars
}

// ChatResult is the outcome of one Chat call.
type ChatResult struct {
	Text      string
	ToolsUsed []ToolCallSummary
}

// Orchestrator drives the tool-use loop over a Client.
type Orchestrator struct {
	client        *Client
	tools         []ToolSchema
	exec          ToolExecutor
	maxIterations int
	contextWindow int
}

// NewOrchestrator builds an orchestrator over client, using the given
// tool catalog/executor and model context window (for dynamic budgeting).
func NewOrchestrator(client *Client, tools []ToolSchema, exec ToolExecutor, contextWindow int) *Orchestrator {
	return &Orchestrator{
		client:        client,
		tools:         tools,
		exec:          exec,
		maxIterations: maxIterationsDefault,
		contextWindow: contextWindow,
	}
}

// Chat runs the tool-use loop: submit, and while the response's stop
// reason is tool_use and the iteration count is under MAX_ITERATIONS,
// execute every tool_use block in parallel, append results, and
// resubmit. Thinking is enabled only on the first iteration.
func (o *Orchestrator) Chat(ctx context.Context, history []Message, systemPrompt, model string, level ThinkingLevel) (ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, outerTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "llm.Chat", trace.WithAttributes(
		attribute.String("model", model),
	))
	defer span.End()

	working := make([]Message, len(history))
	copy(working, history)

	var summaries []ToolCallSummary

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		effectiveLevel := level
		if iteration > 0 {
			effectiveLevel = ThinkingOff // tool-result continuations disable thinking
		}

		inputTokens := tokenest.EstimateMessages(toEstimatorMessages(working)) + tokenest.Estimate(systemPrompt)
		budget := ComputeBudget(o.contextWindow, inputTokens, effectiveLevel, true)

		req := Request{
			Model:     model,
			System:    systemPrompt,
			Messages:  working,
			Tools:     o.tools,
			MaxTokens: budget.MaxTokens,
		}
		if budget.ThinkingBudget > 0 {
			req.Thinking = &Thinking{Type: "enabled", BudgetTokens: budget.ThinkingBudget}
		}

		resp, err := withRetry(ctx, func(ctx context.Context) (Response, error) {
			return o.client.send(ctx, req)
		})
		if err != nil {
			return ChatResult{ToolsUsed: summaries}, fmt.Errorf("llm: chat: %w", err)
		}

		if resp.StopReason != StopToolUse {
			span.SetAttributes(attribute.Int("iterations", iteration+1))
			return ChatResult{Text: resp.Text(), ToolsUsed: summaries}, nil
		}

		toolUses := resp.ToolUseBlocks()
		span.SetAttributes(attribute.Int("tool_calls", len(toolUses)))

		assistantMsg := Message{Role: RoleAssistant, Content: resp.Content}
		working = append(working, assistantMsg)

		results, newSummaries := o.runToolsParallel(ctx, toolUses)
		summaries = append(summaries, newSummaries...)

		working = append(working, Message{Role: RoleUser, Content: results})
	}

	span.SetAttributes(attribute.Int("iterations", o.maxIterations))
	return ChatResult{
		Text:      "I've hit the maximum number of tool calls for this turn and need to stop here.",
		ToolsUsed: summaries,
	}, nil
}

// runToolsParallel executes every tool_use block concurrently and
// returns the tool_result content blocks in the same order, plus a
// summary per call.
func (o *Orchestrator) runToolsParallel(ctx context.Context, toolUses []ContentBlock) ([]ContentBlock, []ToolCallSummary) {
	results := make([]ContentBlock, len(toolUses))
	summaries := make([]ToolCallSummary, len(toolUses))

	// Unbounded fan-out per spec ("execute them in parallel") — no
	// SetLimit, since the registry's per-tool timeout already bounds each
	// call's worst case.
	g, gCtx := errgroup.WithContext(ctx)
	for i, tu := range toolUses {
		i, tu := i, tu
		g.Go(func() error {
			var args map[string]any
			_ = json.Unmarshal(tu.Input, &args)

			out := o.exec(gCtx, tu.Name, args)

			results[i] = ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: tu.ID,
				Content:   out,
			}
			summaries[i] = ToolCallSummary{
				Name:   tu.Name,
				Input:  truncate(string(tu.Input), 200),
				Output: truncate(out, 500),
			}
			return nil
		})
	}
	_ = g.Wait() // ToolExecutor never returns an error; see Dispatch's never-fails contract
	return results, summaries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toEstimatorMessages(msgs []Message) []tokenest.Message {
	out := make([]tokenest.Message, 0, len(msgs))
	for _, m := range msgs {
		var text string
		for _, b := range m.Content {
			text += b.Text + b.Content
		}
		out = append(out, tokenest.Message{Content: text})
	}
	return out
}
