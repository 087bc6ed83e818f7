package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("move-unpacked-nix", func() action.Action { return &MoveUnpackedNix{} })
}

// MoveUnpackedNix moves the unpacked Nix store into place at /nix/store and
// points the default profile at the Nix package inside it.
type MoveUnpackedNix struct {
	Scratch     string `json:"scratch"`
	StoreDir    string `json:"store_dir"`
	ProfilePath string `json:"profile_path"`

	// Captured during execute.
	MovedStore    bool   `json:"moved_store,omitempty"`
	ProfileLink   string `json:"profile_link,omitempty"`
	ProfileTarget string `json:"profile_target,omitempty"`
}

func (a *MoveUnpackedNix) Tag() string { return "move-unpacked-nix" }

func (a *MoveUnpackedNix) Describe() string {
	return fmt.Sprintf("Move the unpacked Nix store to `%s`", a.StoreDir)
}

func (a *MoveUnpackedNix) Explain() []string {
	return []string{
		fmt.Sprintf("Moves the store paths unpacked under `%s` into `%s`", a.Scratch, a.StoreDir),
		fmt.Sprintf("Points `%s` at the Nix package", a.ProfilePath),
	}
}

func (a *MoveUnpackedNix) Execute(ctx context.Context) error {
	if _, err := os.Stat(a.StoreDir); err == nil {
		return nil // store already in place (resumed install)
	}

	root, err := findUnpackedRoot(a.Scratch)
	if err != nil {
		return fmt.Errorf("locate unpacked Nix under %s: %w", a.Scratch, err)
	}
	unpackedStore := filepath.Join(root, "store")
	if _, err := os.Stat(unpackedStore); err != nil {
		return fmt.Errorf("unpacked tree %s has no store directory: %w", root, err)
	}

	if err := os.Rename(unpackedStore, a.StoreDir); err != nil {
		return fmt.Errorf("move %s to %s: %w", unpackedStore, a.StoreDir, err)
	}
	a.MovedStore = true

	target, err := nixPackagePath(a.StoreDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.ProfilePath), 0o755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	if err := os.Symlink(target, a.ProfilePath); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("link default profile: %w", err)
	}
	a.ProfileLink = a.ProfilePath
	a.ProfileTarget = target

	// The scratch directory is spent once the store has moved out of it.
	os.RemoveAll(a.Scratch)
	return nil
}

func (a *MoveUnpackedNix) Revert(ctx context.Context) error {
	var errs []error
	if a.ProfileLink != "" {
		if err := os.Remove(a.ProfileLink); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", a.ProfileLink, err))
		}
	}
	if a.MovedStore {
		if err := os.RemoveAll(a.StoreDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", a.StoreDir, err))
		}
	}
	return errors.Join(errs...)
}

// nixPackagePath finds the nix package's store path, the target of the
// default profile link.
func nixPackagePath(storeDir string) (string, error) {
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", storeDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "-nix-") && !strings.Contains(name, "-doc") {
			return filepath.Join(storeDir, name), nil
		}
	}
	return "", fmt.Errorf("no nix package found in %s", storeDir)
}
