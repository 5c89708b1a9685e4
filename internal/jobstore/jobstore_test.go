package jobstore

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Version int      `json:"version"`
	Items   []string `json:"items"`
}

func TestReadMissingFileIsEmptyNotError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))
	var d doc
	if err := s.Read(&d); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if d.Version != 0 || d.Items != nil {
		t.Fatalf("expected zero value, got %+v", d)
	}
}

func TestReadCorruptFileIsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(path)
	var d doc
	if err := s.Read(&d); err != nil {
		t.Fatalf("expected nil error for corrupt file, got %v", err)
	}
}

func TestUpdateWritesAtomicallyAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	var d doc
	err := s.Update(&d, func() error {
		d.Version = 1
		d.Items = append(d.Items, "a")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var reread doc
	if err := s.Read(&reread); err != nil {
		t.Fatal(err)
	}
	if reread.Version != 1 || len(reread.Items) != 1 || reread.Items[0] != "a" {
		t.Fatalf("unexpected round-tripped doc: %+v", reread)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "jobs.json" {
			t.Fatalf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestUpdateAccumulatesAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	var d doc
	_ = s.Update(&d, func() error { d.Items = append(d.Items, "a"); return nil })
	_ = s.Update(&d, func() error { d.Items = append(d.Items, "b"); return nil })

	var reread doc
	if err := s.Read(&reread); err != nil {
		t.Fatal(err)
	}
	if len(reread.Items) != 2 {
		t.Fatalf("expected 2 accumulated items, got %d: %v", len(reread.Items), reread.Items)
	}
}
