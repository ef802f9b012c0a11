package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateAndRemove(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	id, dir, err := s.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(id, "nebula_") {
		t.Errorf("id = %q, want nebula_ prefix", id)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("workspace dir missing: %v", err)
	}

	if err := s.Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("dir still exists after Remove")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, dir, err := s.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Remove(dir); err != nil {
			t.Errorf("Remove #%d: %v", i+1, err)
		}
	}
}

func TestRemoveRefusesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "work"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	victim := filepath.Join(root, "precious")
	if err := os.MkdirAll(victim, 0o700); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(victim); err == nil {
		t.Error("Remove accepted a dir outside the root")
	}
	if err := s.Remove(s.Root()); err == nil {
		t.Error("Remove accepted the root itself")
	}
	if _, err := os.Stat(victim); err != nil {
		t.Errorf("outside dir was removed: %v", err)
	}
}

func TestSweepRemovesStaleWorkspaces(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, _, err := s.Create(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Create(); err != nil {
		t.Fatal(err)
	}
	// Unrelated entries survive the sweep.
	if err := os.MkdirAll(filepath.Join(root, "keepme"), 0o700); err != nil {
		t.Fatal(err)
	}

	if removed := s.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "keepme")); err != nil {
		t.Errorf("sweep removed unrelated dir: %v", err)
	}
}
