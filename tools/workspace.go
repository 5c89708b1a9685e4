// Package tools provides the built-in tool implementations wired into
// the assistant's tool registry via assistant.WithTools. Each function
// here returns an assistant.ToolInstaller — a plain
// func(*toolregistry.Registry) error — so the top-level package never
// needs to know about these concrete implementations.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi-assistant/internal/toolregistry"
)

// FileTools registers read_file and list_directory, both scoped to root
// and rejecting any path that would resolve outside of it.
func FileTools(root string) func(r *toolregistry.Registry) error {
	return func(r *toolregistry.Registry) error {
		r.Register("read_file", &toolregistry.Tool{
			Schema: mcplib.NewTool("read_file",
				mcplib.WithDescription("Read a text file from the workspace. Paths are relative to the "+
					"workspace root; a path that resolves outside the root is rejected. Large files are "+
					"truncated from the head — ask for a narrower path if you need the tail."),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithString("path",
					mcplib.Description("File path relative to the workspace root, e.g. \"memory/2026-08-01.md\"."),
					mcplib.Required(),
				),
			),
			Func:        readFile(root),
			Compression: toolregistry.CompressHeadOrTail,
		})

		r.Register("list_directory", &toolregistry.Tool{
			Schema: mcplib.NewTool("list_directory",
				mcplib.WithDescription("List files and subdirectories under a workspace path. "+
					"Directories are suffixed with \"/\"."),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithString("path",
					mcplib.Description("Directory path relative to the workspace root. Omit for the root."),
				),
			),
			Func:        listDirectory(root),
			Compression: toolregistry.CompressListDirectory,
		})

		return nil
	}
}

// resolveUnder joins root and rel, rejecting any result that escapes root
// ("../" traversal is caught by the prefix check after filepath.Join
// cleans the path; an absolute rel is joined under root like a relative
// one; symlinks are not resolved, so one inside root is followed).
func resolveUnder(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace root", rel)
	}
	return joined, nil
}

func readFile(root string) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		rel, _ := args["path"].(string)
		if rel == "" {
			return "", fmt.Errorf("path is required")
		}
		path, err := resolveUnder(root, rel)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %q: %w", rel, err)
		}
		return string(data), nil
	}
}

func listDirectory(root string) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		rel, _ := args["path"].(string)
		path, err := resolveUnder(root, rel)
		if err != nil {
			return "", err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", fmt.Errorf("list %q: %w", rel, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return "(empty)", nil
		}
		return strings.Join(names, "\n"), nil
	}
}
