// Package receipt persists the install plan at its well-known path. The
// on-disk receipt is the sole source of truth for uninstallation, so writes
// are atomic (same-directory temp file, fsync, rename, directory fsync) and
// reads refuse version-incompatible receipts before decoding any action.
package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/atomikpanda/nixup/internal/plan"
)

// DefaultPath is the canonical receipt location on every supported OS.
const DefaultPath = "/nix/receipt.json"

// ErrNoReceipt is returned by Load when no receipt exists at the store path.
var ErrNoReceipt = errors.New("no receipt found (is Nix installed with nixup?)")

// Store reads and writes the receipt at a fixed path.
type Store struct {
	Path string
}

// New returns a Store at the default receipt path.
func New() *Store {
	return &Store{Path: DefaultPath}
}

// Exists reports whether a receipt is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Write persists p atomically: the serialized plan goes to a temp file in
// the receipt directory, is fsynced, renamed over the canonical path, and
// the directory is fsynced so the rename survives a crash.
func (s *Store) Write(p *plan.Plan) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize receipt: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".receipt-*.json")
	if err != nil {
		return fmt.Errorf("create receipt temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write receipt: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close receipt temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod receipt: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("rename receipt into place: %w", err)
	}
	return syncDir(dir)
}

// Load reads and decodes the receipt. The declared installer version is
// checked before any action payload is interpreted; an incompatible version
// fails with plan.VersionMismatchError rather than a partial decode.
func (s *Store) Load() (*plan.Plan, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoReceipt
	}
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", s.Path, err)
	}

	var probe struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse receipt %s: %w", s.Path, err)
	}
	if err := plan.CheckCompatible(probe.Version); err != nil {
		return nil, err
	}

	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse receipt %s: %w", s.Path, err)
	}
	return &p, nil
}

// Delete removes the receipt. Called only after a fully successful revert.
func (s *Store) Delete() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return syncDir(filepath.Dir(s.Path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil // directory already removed along with the install
	}
	if err != nil {
		return fmt.Errorf("open receipt directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync receipt directory: %w", err)
	}
	return nil
}
