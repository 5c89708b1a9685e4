package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi-assistant/internal/toolregistry"
)

// ExecTools registers run_command, get_command_output, and kill_session
// against internal/toolregistry's command executor, which enforces the
// allowlist, blocklist, chaining rules, working-directory confinement,
// and environment stripping in one place.
func ExecTools(workspaceRoot string) func(r *toolregistry.Registry) error {
	bg := toolregistry.NewBackgroundManager()

	return func(r *toolregistry.Registry) error {
		r.Register("run_command", &toolregistry.Tool{
			Schema: mcplib.NewTool("run_command",
				mcplib.WithDescription("Run a shell command in the workspace directory. Only a small "+
					"allowlist of inspection commands (ls, cat, grep, find, git, go, ...) is permitted; "+
					"anything else, or any redirection/substitution operator, is rejected before it runs. "+
					"Segments chained with &&, ||, or ; are each validated independently. Set background "+
					"to true to detach a long-running command and get back a session id to poll."),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithString("command",
					mcplib.Description("The full command line to run, e.g. \"git log --oneline -5\"."),
					mcplib.Required(),
				),
				mcplib.WithString("working_dir",
					mcplib.Description("Directory to run in, relative to the workspace root. Defaults to the workspace root."),
				),
				mcplib.WithString("background",
					mcplib.Description("\"true\" to run detached and return a session id instead of waiting for output."),
				),
			),
			Func:    runCommand(workspaceRoot, bg),
			Timeout: 60 * time.Second,
		})

		r.Register("get_command_output", &toolregistry.Tool{
			Schema: mcplib.NewTool("get_command_output",
				mcplib.WithDescription("Fetch the output captured so far from a background run_command session."),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithString("session_id",
					mcplib.Description("The session id returned by a background run_command call."),
					mcplib.Required(),
				),
			),
			Func:        getCommandOutput(bg),
			Compression: toolregistry.CompressHeadOrTail,
		})

		r.Register("kill_session", &toolregistry.Tool{
			Schema: mcplib.NewTool("kill_session",
				mcplib.WithDescription("Terminate a background command session started by run_command."),
				mcplib.WithDestructiveHintAnnotation(true),
				mcplib.WithString("session_id",
					mcplib.Description("The session id returned by a background run_command call."),
					mcplib.Required(),
				),
			),
			Func: killSession(bg),
		})
		return nil
	}
}

func runCommand(workspaceRoot string, bg *toolregistry.BackgroundManager) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		cmd, _ := args["command"].(string)
		if cmd == "" {
			return "", fmt.Errorf("command is required")
		}
		dir, _ := args["working_dir"].(string)
		if dir == "" {
			dir = workspaceRoot
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(workspaceRoot, dir)
		}

		if background, _ := args["background"].(string); background == "true" {
			id, err := bg.Spawn(cmd, dir, workspaceRoot)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("started background session %s", id), nil
		}

		return toolregistry.RunForeground(ctx, cmd, dir, workspaceRoot)
	}
}

func getCommandOutput(bg *toolregistry.BackgroundManager) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		id, _ := args["session_id"].(string)
		if id == "" {
			return "", fmt.Errorf("session_id is required")
		}
		out, done, exitErr := bg.Output(id)
		if !done && exitErr != nil {
			return "", exitErr
		}
		status := "running"
		if done {
			status = "exited"
			if exitErr != nil {
				status = fmt.Sprintf("exited: %v", exitErr)
			}
		}
		return fmt.Sprintf("[%s]\n%s", status, out), nil
	}
}

func killSession(bg *toolregistry.BackgroundManager) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		id, _ := args["session_id"].(string)
		if id == "" {
			return "", fmt.Errorf("session_id is required")
		}
		if err := bg.Kill(id, syscall.SIGTERM); err != nil {
			return "", err
		}
		return fmt.Sprintf("killed session %s", id), nil
	}
}
