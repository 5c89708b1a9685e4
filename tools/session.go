package tools

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi-assistant/internal/ctxutil"
	"github.com/ashita-ai/akashi-assistant/internal/session"
	"github.com/ashita-ai/akashi-assistant/internal/toolregistry"
)

// SessionTools registers get_session_log, which reads back the current
// conversation's own rolling history — useful when a model needs to
// recall something said earlier in a long conversation that has since
// scrolled out of the prompt's immediate context.
func SessionTools(store *session.Store) func(r *toolregistry.Registry) error {
	return func(r *toolregistry.Registry) error {
		r.Register("get_session_log", &toolregistry.Tool{
			Schema: mcplib.NewTool("get_session_log",
				mcplib.WithDescription("Return the most recent turns of this conversation's history. "+
					"Use this to recall something said earlier that is no longer in the immediate prompt."),
				mcplib.WithReadOnlyHintAnnotation(true),
			),
			Func:        getSessionLog(store),
			Compression: toolregistry.CompressHeadOrTail,
		})
		return nil
	}
}

// getSessionLog formats history newest-first, since CompressHeadOrTail
// only preserves the head of its input — per its own doc comment, tail
// preservation for logs requires passing already-reversed input.
func getSessionLog(store *session.Store) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		chatID := ctxutil.ChatIDFromContext(ctx)
		if chatID == "" {
			return "", fmt.Errorf("no conversation bound to this call")
		}
		history, _, _ := store.BuildContextForPrompt(chatID)
		if len(history) == 0 {
			return "(no history yet)", nil
		}
		var b strings.Builder
		for i := len(history) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "[%s] %s\n", history[i].Role, history[i].Content)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}
