// Package workspace manages the isolated per-attempt storage directories.
//
// Each pairing attempt gets exactly one workspace under the configured root.
// The protocol client persists its auth state there incrementally; once the
// attempt reaches a terminal state the directory is destroyed. Removal is
// idempotent so the success path and the close/timeout path can race on it.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const dirPrefix = "nebula_"

// Store creates and destroys workspaces under a single root directory.
type Store struct {
	root string
}

// NewStore ensures root exists and returns a store over it.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the root directory the store manages.
func (s *Store) Root() string { return s.root }

// Create allocates a fresh workspace and returns its id and absolute path.
// The id doubles as the directory name.
func (s *Store) Create() (id, dir string, err error) {
	id = dirPrefix + uuid.NewString()
	dir = filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create workspace %s: %w", id, err)
	}
	return id, dir, nil
}

// Remove destroys a workspace. Removing a workspace that is already gone is
// a no-op, not an error.
func (s *Store) Remove(dir string) error {
	if dir == "" {
		return nil
	}
	// Refuse to remove anything outside the root.
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("workspace %s is outside root %s", dir, s.root)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", dir, err)
	}
	return nil
}

// Sweep removes every workspace directory left under the root, typically
// orphans from a previous crash. Returns the number of directories removed.
func (s *Store) Sweep() int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		slog.Warn("workspace sweep failed", "root", s.root, "error", err)
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			slog.Warn("workspace sweep: remove failed", "dir", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("workspace sweep removed stale dirs", "count", removed)
	}
	return removed
}
