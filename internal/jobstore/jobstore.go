// Package jobstore persists small JSON documents (cron jobs, reminders)
// under an advisory file lock, writing through a temp file and atomic
// rename so a reader never observes a partial write. The lock+temp+rename
// sequence is the same discipline the assistant's predecessor system used
// for its write-ahead log checkpoints, simplified here to a single-writer
// whole-document rewrite since these documents are small and mutate rarely.
package jobstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	lockRetryInterval = 50 * time.Millisecond
	lockMaxRetries    = 100
	lockStaleAfter    = 5 * time.Second
)

// Store manages a single JSON document at path under an advisory lock.
type Store struct {
	path     string
	lockPath string
}

// New creates a store for the JSON document at path.
func New(path string) *Store {
	return &Store{path: path, lockPath: path + ".lock"}
}

// acquireLock creates the lock file exclusively, retrying while it exists
// and is fresh, and forcibly removing it once it's older than
// lockStaleAfter. Gives up (proceeding anyway, with the caller treated as
// holding the lock) after lockMaxRetries attempts.
func (s *Store) acquireLock() error {
	for i := 0; i < lockMaxRetries; i++ {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("jobstore: create lock: %w", err)
		}
		if info, statErr := os.Stat(s.lockPath); statErr == nil {
			if time.Since(info.ModTime()) > lockStaleAfter {
				_ = os.Remove(s.lockPath)
				continue
			}
		}
		time.Sleep(lockRetryInterval)
	}
	// Give up and proceed anyway rather than block a scheduler/reminder tick
	// forever; the caller risks a lost write if the real lock holder is still
	// active, so this is surfaced as a warning rather than silently swallowed.
	slog.Default().Warn("jobstore: giving up on lock, proceeding without it", "lock_path", s.lockPath)
	return nil
}

func (s *Store) releaseLock() {
	_ = os.Remove(s.lockPath)
}

// Read loads and unmarshals the document into v. A missing or corrupt file
// is non-fatal: v is left at its zero value and nil is returned.
func (s *Store) Read(v any) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil //nolint: nilerr -- missing file yields an empty store by contract
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil //nolint: nilerr -- corrupt file yields an empty store by contract
	}
	return nil
}

// Update acquires the lock, reads the current document into v via read,
// lets mutate modify v in place, then writes v back through a temp file
// and atomic rename, and finally releases the lock.
func (s *Store) Update(v any, mutate func() error) error {
	if err := s.acquireLock(); err != nil {
		return err
	}
	defer s.releaseLock()

	if err := s.Read(v); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	return s.writeAtomic(v)
}

func (s *Store) writeAtomic(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("jobstore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jobstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jobstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jobstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jobstore: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jobstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("jobstore: rename: %w", err)
	}
	return nil
}
