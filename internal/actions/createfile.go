package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("create-file", func() action.Action { return &CreateFile{} })
}

// CreateFile writes a file with fixed contents. When the file pre-exists,
// its bytes are captured during execute so revert can distinguish
// delete-from-scratch from restore-previous-contents.
type CreateFile struct {
	Path     string `json:"path"`
	Contents []byte `json:"contents"`
	Mode     uint32 `json:"mode"`

	// Captured during execute.
	Existed  bool   `json:"existed,omitempty"`
	Previous []byte `json:"previous,omitempty"`
}

func (a *CreateFile) Tag() string { return "create-file" }

func (a *CreateFile) Describe() string {
	return fmt.Sprintf("Create file `%s`", a.Path)
}

func (a *CreateFile) Explain() []string {
	return []string{fmt.Sprintf("Writes %d bytes to `%s`, replacing any existing file (the prior contents are preserved for uninstall)", len(a.Contents), a.Path)}
}

func (a *CreateFile) Execute(ctx context.Context) error {
	existing, err := os.ReadFile(a.Path)
	switch {
	case err == nil && bytes.Equal(existing, a.Contents):
		return nil // desired state already present
	case err == nil:
		a.Existed = true
		a.Previous = existing
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read %s: %w", a.Path, err)
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("create parent directory of %s: %w", a.Path, err)
	}
	if err := os.WriteFile(a.Path, a.Contents, fs.FileMode(a.Mode)); err != nil {
		return fmt.Errorf("write %s: %w", a.Path, err)
	}
	return os.Chmod(a.Path, fs.FileMode(a.Mode))
}

func (a *CreateFile) Revert(ctx context.Context) error {
	current, err := os.ReadFile(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil // already absent
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", a.Path, err)
	}
	// Only undo our own write; a file someone else changed since is kept.
	if !bytes.Equal(current, a.Contents) {
		return nil
	}
	if a.Existed {
		if err := os.WriteFile(a.Path, a.Previous, fs.FileMode(a.Mode)); err != nil {
			return fmt.Errorf("restore previous contents of %s: %w", a.Path, err)
		}
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.Path, err)
	}
	return nil
}
