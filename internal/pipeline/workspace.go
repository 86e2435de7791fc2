package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Workspace is the scratch directory for a single transcription request.
// Every request gets a unique root so concurrent uploads never collide, and
// Cleanup removes the whole tree exactly once no matter how many paths call it.
type Workspace struct {
	root string

	cleanupOnce sync.Once
	cleanupErr  error
}

// NewWorkspace creates a fresh request-scoped directory under baseDir.
func NewWorkspace(baseDir string) (*Workspace, error) {
	root := filepath.Join(baseDir, "req-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %q: %w", root, err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Path returns the location of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.root, name)
}

// MkdirAll creates a subdirectory inside the workspace and returns its path.
func (w *Workspace) MkdirAll(name string) (string, error) {
	dir := w.Path(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace subdirectory %q: %w", dir, err)
	}
	return dir, nil
}

// Cleanup removes the workspace tree. Safe to call multiple times and from
// deferred paths; only the first call does the removal.
func (w *Workspace) Cleanup() error {
	w.cleanupOnce.Do(func() {
		w.cleanupErr = os.RemoveAll(w.root)
	})
	return w.cleanupErr
}
