// Package workspace reads and writes the per-user directory of persona and
// memory markdown files that ground the assistant's system prompt.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// File names under the workspace root, matching the authoritative layout.
const (
	FileAgents    = "AGENTS.md"
	FileBootstrap = "BOOTSTRAP.md"
	FileIdentity  = "IDENTITY.md"
	FileSoul      = "SOUL.md"
	FileUser      = "USER.md"
	FileTools     = "TOOLS.md"
	FileHeartbeat = "HEARTBEAT.md"
	FileMemory    = "MEMORY.md"

	dailyDir         = "memory"
	truncationMarker = "\n\n... (truncated)"
)

// caps is the per-file char cap applied on load. Files not listed here
// (onboarding) are uncapped.
var caps = map[string]int{
	FileIdentity:  2000,
	FileSoul:      4000,
	FileUser:      3000,
	FileAgents:    8000,
	FileTools:     3000,
	FileHeartbeat: 2000,
	FileMemory:    6000,
}

// Workspace holds the loaded content of every known file, nil when absent.
type Workspace struct {
	Agents    *string
	Bootstrap *string
	Identity  *string
	Soul      *string
	User      *string
	Tools     *string
	Heartbeat *string
	Memory    *string
}

// Store reads and writes workspace files rooted at Root.
type Store struct {
	Root string
}

// New creates a workspace store rooted at root, creating the directory
// structure if it does not already exist.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, dailyDir), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	return &Store{Root: root}, nil
}

// Load performs a parallel fan-out read of every known file, applying the
// truncation policy to each, and returns the aggregate Workspace. Missing
// files are non-fatal and surface as a nil field.
func (s *Store) Load() (Workspace, error) {
	files := []string{FileAgents, FileBootstrap, FileIdentity, FileSoul, FileUser, FileTools, FileHeartbeat, FileMemory}

	var mu sync.Mutex
	var ws Workspace

	var g errgroup.Group
	for _, name := range files {
		name := name
		g.Go(func() error {
			content, err := s.loadOne(name)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			switch name {
			case FileAgents:
				ws.Agents = content
			case FileBootstrap:
				ws.Bootstrap = content
			case FileIdentity:
				ws.Identity = content
			case FileSoul:
				ws.Soul = content
			case FileUser:
				ws.User = content
			case FileTools:
				ws.Tools = content
			case FileHeartbeat:
				ws.Heartbeat = content
			case FileMemory:
				ws.Memory = content
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// loadOne reads and caps a single file. A missing file is not an error.
func (s *Store) loadOne(name string) (*string, error) {
	path := filepath.Join(s.Root, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: read %s: %w", name, err)
	}
	text := truncate(string(raw), caps[name])
	return &text, nil
}

// Save writes content to the named workspace file, creating or overwriting it.
func (s *Store) Save(name, content string) error {
	path := filepath.Join(s.Root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", name, err)
	}
	return nil
}

// AppendDailyLog appends content to today's daily memory file, prefixed
// with a timestamped section header.
func (s *Store) AppendDailyLog(content string) error {
	name := time.Now().Format("2006-01-02") + ".md"
	path := filepath.Join(s.Root, dailyDir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: open daily log: %w", err)
	}
	defer f.Close()

	section := fmt.Sprintf("\n## %s\n%s\n", time.Now().Format(time.RFC3339), content)
	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("workspace: append daily log: %w", err)
	}
	return nil
}

// ListRecentDaily returns the concatenation of the most recent `days` daily
// memory files (newest first), each independently capped. When a file
// exceeds its cap, the oldest "## timestamp" sections are trimmed first.
func (s *Store) ListRecentDaily(days int) (string, error) {
	dir := filepath.Join(s.Root, dailyDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("workspace: list daily dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > days {
		names = names[:days]
	}

	const perFileCap = 4000
	var b strings.Builder
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		b.WriteString(trimOldestSections(string(raw), perFileCap))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// truncate cuts text at the last "\n\n" within [cap*0.7, cap], or at cap if
// no such break exists, appending a fixed marker. cap <= 0 means uncapped.
func truncate(text string, cap int) string {
	if cap <= 0 || len(text) <= cap {
		return text
	}
	lo := int(float64(cap) * 0.7)
	window := text[lo:cap]
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return text[:lo+idx] + truncationMarker
	}
	return text[:cap] + truncationMarker
}

// trimOldestSections drops leading "## " sections from text until it fits
// within cap, preferring to keep the most recent content.
func trimOldestSections(text string, cap int) string {
	if len(text) <= cap {
		return text
	}
	sections := strings.Split(text, "\n## ")
	for len(sections) > 1 && totalLen(sections) > cap {
		sections = sections[1:]
	}
	return strings.Join(sections, "\n## ")
}

func totalLen(parts []string) int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n
}
