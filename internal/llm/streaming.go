package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashita-ai/akashi-assistant/internal/tokenest"
)

// ChunkFunc receives each text delta as it streams in.
type ChunkFunc func(text string)

// errStreamInterrupted signals a mid-stream failure after partial text
// was already delivered to the caller; it is never retried (see
// ChatStream) and its partial buffer is returned with a failure notice.
var errStreamInterrupted = errors.New("llm: stream interrupted after partial delivery")

// sseEvent is one parsed "event:"/"data:" pair from the stream, framed
// with bufio.Scanner the same way the teacher's broker frames outbound
// SSE, but here as a client reading them.
type sseEvent struct {
	event string
	data  string
}

func scanSSE(body *bufio.Scanner) <-chan sseEvent {
	out := make(chan sseEvent)
	go func() {
		defer close(out)
		var cur sseEvent
		for body.Scan() {
			line := body.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "":
				if cur.event != "" {
					out <- cur
				}
				cur = sseEvent{}
			}
		}
	}()
	return out
}

type streamDelta struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		StopReason StopReason `json:"stop_reason"`
		Content    []ContentBlock
	} `json:"message"`
}

// streamOnce attempts a single streaming call, forwarding text deltas to
// onChunk. Returns the accumulated text, whether any chunk was delivered,
// and the final stop reason (empty if the stream never completed).
func (c *Client) streamOnce(ctx context.Context, req Request, onChunk ChunkFunc) (text string, delivered bool, stopReason StopReason, err error) {
	req.Stream = true
	body, merr := json.Marshal(req)
	if merr != nil {
		return "", false, "", fmt.Errorf("llm: marshal stream request: %w", merr)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", false, "", fmt.Errorf("llm: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", false, "", fmt.Errorf("llm: stream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", false, "", &apiError{statusCode: resp.StatusCode, body: "stream request failed"}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buf strings.Builder
	for ev := range scanSSE(scanner) {
		var d streamDelta
		if jsonErr := json.Unmarshal([]byte(ev.data), &d); jsonErr != nil {
			continue
		}
		switch ev.event {
		case "content_block_delta":
			if d.Delta.Type == "text_delta" && d.Delta.Text != "" {
				buf.WriteString(d.Delta.Text)
				delivered = true
				if onChunk != nil {
					onChunk(d.Delta.Text)
				}
			}
		case "message_delta":
			if d.Message.StopReason != "" {
				stopReason = d.Message.StopReason
			}
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return buf.String(), delivered, stopReason, fmt.Errorf("llm: stream read: %w", scanErr)
	}
	return buf.String(), delivered, stopReason, nil
}

// ChatStream attempts a streaming call, forwarding text chunks via
// onChunk. If the stream ends with stop reason tool_use, it falls back
// to the non-streaming tool-use loop (thinking disabled) to finish.
// Errors before any chunk is emitted are retried via the same policy as
// Chat; errors during streaming are not retried — a partial buffer with
// an appended failure notice is returned if any text was already
// delivered, otherwise the error propagates.
func (o *Orchestrator) ChatStream(ctx context.Context, history []Message, systemPrompt, model string, level ThinkingLevel, onChunk ChunkFunc) (ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, outerTimeout)
	defer cancel()

	inputTokens := tokenest.EstimateMessages(toEstimatorMessages(history)) + tokenest.Estimate(systemPrompt)
	budget := ComputeBudget(o.contextWindow, inputTokens, level, true)
	req := Request{
		Model:     model,
		System:    systemPrompt,
		Messages:  history,
		Tools:     o.tools,
		MaxTokens: budget.MaxTokens,
	}
	if budget.ThinkingBudget > 0 {
		req.Thinking = &Thinking{Type: "enabled", BudgetTokens: budget.ThinkingBudget}
	}

	var text string
	var delivered bool
	var stopReason StopReason

	resp, err := withRetry(ctx, func(ctx context.Context) (Response, error) {
		t, d, sr, serr := o.client.streamOnce(ctx, req, onChunk)
		text, delivered, stopReason = t, d, sr
		if serr != nil {
			if d {
				// Mid-stream failure after partial delivery: don't retry,
				// surface what we have. errStreamInterrupted carries no
				// transient-looking substrings so isTransient never
				// retries it regardless of the underlying cause.
				return Response{}, errStreamInterrupted
			}
			return Response{}, serr
		}
		return Response{StopReason: sr}, nil
	})
	if err != nil {
		if delivered {
			return ChatResult{Text: text + "\n\n[stream interrupted]"}, nil
		}
		return ChatResult{}, fmt.Errorf("llm: chat stream: %w", err)
	}
	_ = resp

	if stopReason != StopToolUse {
		return ChatResult{Text: text}, nil
	}

	// Fall back to the non-streaming loop, continuing from where the
	// stream left off, with thinking disabled.
	working := append(append([]Message{}, history...), TextMessage(RoleAssistant, text))
	return o.Chat(ctx, working, systemPrompt, model, ThinkingOff)
}
