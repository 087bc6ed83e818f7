package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("create-directory", func() action.Action { return &CreateDirectory{} })
}

// CreateDirectory creates a directory (and missing parents). Whether the
// directory pre-existed is captured during execute so revert removes only a
// directory this install created.
type CreateDirectory struct {
	Path string `json:"path"`
	Mode uint32 `json:"mode"`
	// ForceRemoveOnRevert removes the directory and its contents even when
	// other actions populated it (e.g. /nix itself after the store moved in).
	ForceRemoveOnRevert bool `json:"force_remove_on_revert,omitempty"`

	// Captured during execute.
	Created bool `json:"created,omitempty"`
}

func (a *CreateDirectory) Tag() string { return "create-directory" }

func (a *CreateDirectory) Describe() string {
	return fmt.Sprintf("Create directory `%s`", a.Path)
}

func (a *CreateDirectory) Explain() []string {
	return []string{fmt.Sprintf("Creates `%s` with mode %04o if it does not already exist", a.Path, a.Mode)}
}

func (a *CreateDirectory) Execute(ctx context.Context) error {
	info, err := os.Stat(a.Path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("`%s` exists but is not a directory", a.Path)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", a.Path, err)
	}
	if err := os.MkdirAll(a.Path, fs.FileMode(a.Mode)); err != nil {
		return fmt.Errorf("create directory %s: %w", a.Path, err)
	}
	// MkdirAll applies the umask; enforce the requested mode on the leaf.
	if err := os.Chmod(a.Path, fs.FileMode(a.Mode)); err != nil {
		return fmt.Errorf("chmod %s: %w", a.Path, err)
	}
	a.Created = true
	return nil
}

func (a *CreateDirectory) Revert(ctx context.Context) error {
	if !a.Created {
		return nil // pre-existing; not ours to remove
	}
	if _, err := os.Stat(a.Path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if a.ForceRemoveOnRevert {
		if err := os.RemoveAll(a.Path); err != nil {
			return fmt.Errorf("remove %s: %w", a.Path, err)
		}
		return nil
	}
	err := os.Remove(a.Path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	// Non-empty: other software has since put files there. Leave it.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("directory %s not removed: %w (remove its contents and retry uninstall)", a.Path, pathErr.Err)
	}
	return err
}
