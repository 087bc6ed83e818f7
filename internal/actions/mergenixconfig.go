package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("merge-nix-config", func() action.Action { return &MergeNixConfig{} })
}

// MergeNixConfig creates /etc/nix/nix.conf or merges the installer's
// settings into an existing one. A pre-existing file with a conflicting
// value for one of our keys is an error: silently clobbering an operator's
// nix.conf is worse than refusing.
type MergeNixConfig struct {
	Path      string            `json:"path"`
	Settings  map[string]string `json:"settings"`
	ExtraConf []string          `json:"extra_conf,omitempty"`

	// Captured during execute.
	Existed  bool   `json:"existed,omitempty"`
	Previous []byte `json:"previous,omitempty"`
	Written  []byte `json:"written,omitempty"`
}

func (a *MergeNixConfig) Tag() string { return "merge-nix-config" }

func (a *MergeNixConfig) Describe() string {
	return fmt.Sprintf("Create or merge Nix configuration `%s`", a.Path)
}

func (a *MergeNixConfig) Explain() []string {
	keys := make([]string, 0, len(a.Settings))
	for k := range a.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return []string{
		fmt.Sprintf("Sets %s in `%s`, merging with any existing configuration", strings.Join(keys, ", "), a.Path),
	}
}

func (a *MergeNixConfig) Execute(ctx context.Context) error {
	existing, err := os.ReadFile(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", a.Path, err)
	}

	var rendered []byte
	if err == nil {
		merged, mergeErr := a.merge(existing)
		if mergeErr != nil {
			return mergeErr
		}
		if bytes.Equal(merged, existing) {
			return nil // every setting already present
		}
		a.Existed = true
		a.Previous = existing
		rendered = merged
	} else {
		rendered = a.render()
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("create parent directory of %s: %w", a.Path, err)
	}
	if err := os.WriteFile(a.Path, rendered, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", a.Path, err)
	}
	a.Written = rendered
	return nil
}

func (a *MergeNixConfig) Revert(ctx context.Context) error {
	current, err := os.ReadFile(a.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", a.Path, err)
	}
	if !bytes.Equal(current, a.Written) {
		return nil // modified since install; keep the operator's version
	}
	if a.Existed {
		if err := os.WriteFile(a.Path, a.Previous, 0o644); err != nil {
			return fmt.Errorf("restore previous %s: %w", a.Path, err)
		}
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.Path, err)
	}
	return nil
}

// render produces the config written when no file pre-exists.
func (a *MergeNixConfig) render() []byte {
	var b strings.Builder
	for _, k := range a.sortedKeys() {
		fmt.Fprintf(&b, "%s = %s\n", k, a.Settings[k])
	}
	for _, line := range a.ExtraConf {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// merge appends missing settings to an existing config, erroring when a key
// is present with a different value.
func (a *MergeNixConfig) merge(existing []byte) ([]byte, error) {
	present := map[string]string{}
	for _, line := range strings.Split(string(existing), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		present[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	out := bytes.Clone(existing)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	for _, k := range a.sortedKeys() {
		want := a.Settings[k]
		have, ok := present[k]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s = %s\n", k, want)...)
		case have != want:
			return nil, fmt.Errorf("existing %s sets `%s = %s`, which conflicts with the required `%s`; resolve the conflict and re-run", a.Path, k, have, want)
		}
	}
	for _, line := range a.ExtraConf {
		trimmed := strings.TrimSpace(line)
		if key, _, ok := strings.Cut(trimmed, "="); !ok || present[strings.TrimSpace(key)] == "" {
			out = append(out, line...)
			out = append(out, '\n')
		}
	}
	return out, nil
}

func (a *MergeNixConfig) sortedKeys() []string {
	keys := make([]string, 0, len(a.Settings))
	for k := range a.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
