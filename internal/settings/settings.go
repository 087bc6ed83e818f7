// Package settings holds the planner settings every install shares. Each
// setting has three sources, in increasing precedence: an optional YAML
// config file, a NIXUP_* environment variable, and a command-line flag.
// The names (never the values) of operator-overridden settings are the
// only settings information that may leave the machine via diagnostics.
package settings

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every settings environment variable.
const EnvPrefix = "NIXUP_"

// Settings are the effective install parameters handed to a planner.
type Settings struct {
	NixBuildGroupName  string   `yaml:"nix-build-group-name"`
	NixBuildGroupID    uint32   `yaml:"nix-build-group-id"`
	NixBuildUserPrefix string   `yaml:"nix-build-user-prefix"`
	NixBuildUserCount  int      `yaml:"nix-build-user-count"`
	NixBuildUserIDBase uint32   `yaml:"nix-build-user-id-base"`
	Channels           []string `yaml:"channels"`
	ModifyProfile      bool     `yaml:"modify-profile"`
	NixPackageURL      string   `yaml:"nix-package-url"`
	ExtraConf          []string `yaml:"extra-conf"`
	Force              bool     `yaml:"force"`
	DiagnosticEndpoint string   `yaml:"diagnostic-endpoint"`
	Parallelism        int      `yaml:"parallelism"`

	configured map[string]bool
}

// Default returns the settings used when the operator overrides nothing.
func Default(triple string) *Settings {
	return &Settings{
		NixBuildGroupName:  "nixbld",
		NixBuildGroupID:    3000,
		NixBuildUserPrefix: "nixbld",
		NixBuildUserCount:  32,
		NixBuildUserIDBase: 30000,
		Channels:           []string{"nixpkgs=https://nixos.org/channels/nixpkgs-unstable"},
		ModifyProfile:      true,
		NixPackageURL:      fmt.Sprintf("https://releases.nixos.org/nix/nix-2.18.1/nix-2.18.1-%s.tar.xz", triple),
		DiagnosticEndpoint: "https://install.nixup.dev/diagnostic",
	}
}

// LoadFile merges the YAML config at path into s. A missing file is not an
// error; every key present in the file counts as configured.
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings file %s: %w", path, err)
	}
	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	for k := range keys {
		s.MarkConfigured(k)
	}
	return nil
}

// ApplyEnv overlays every NIXUP_* environment variable present in the
// process environment. Env vars survive the sudo re-exec, so settings set
// this way behave identically before and after elevation.
func (s *Settings) ApplyEnv() error {
	for _, spec := range s.specs() {
		v, ok := os.LookupEnv(EnvName(spec.name))
		if !ok {
			continue
		}
		if err := spec.set(v); err != nil {
			return fmt.Errorf("%s: %w", EnvName(spec.name), err)
		}
		s.MarkConfigured(spec.name)
	}
	return nil
}

// MarkConfigured records that the operator overrode the named setting.
func (s *Settings) MarkConfigured(name string) {
	if s.configured == nil {
		s.configured = make(map[string]bool)
	}
	s.configured[name] = true
}

// ConfiguredNames returns the sorted names of overridden settings. Values
// are deliberately not returned; this feeds the diagnostics allow-list.
func (s *Settings) ConfiguredNames() []string {
	names := make([]string, 0, len(s.configured))
	for n := range s.configured {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EnvAllowList returns the environment variable names that must survive a
// privilege-escalation re-exec.
func (s *Settings) EnvAllowList() []string {
	var names []string
	for _, spec := range s.specs() {
		names = append(names, EnvName(spec.name))
	}
	return names
}

// Describe returns the settings as a map for embedding in the plan. The
// receipt records effective values so a later install can tell whether an
// existing receipt was made with the same settings before resuming it.
func (s *Settings) Describe() map[string]any {
	return map[string]any{
		"nix-build-group-name":   s.NixBuildGroupName,
		"nix-build-group-id":     s.NixBuildGroupID,
		"nix-build-user-prefix":  s.NixBuildUserPrefix,
		"nix-build-user-count":   s.NixBuildUserCount,
		"nix-build-user-id-base": s.NixBuildUserIDBase,
		"channels":               strings.Join(s.Channels, ","),
		"modify-profile":         s.ModifyProfile,
		"nix-package-url":        s.NixPackageURL,
		"extra-conf":             strings.Join(s.ExtraConf, "\n"),
		"force":                  s.Force,
	}
}

// EnvName maps a setting name to its environment variable form, e.g.
// "nix-build-group-id" → "NIXUP_NIX_BUILD_GROUP_ID".
func EnvName(setting string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(setting, "-", "_"))
}

type settingSpec struct {
	name string
	set  func(string) error
}

func (s *Settings) specs() []settingSpec {
	return []settingSpec{
		{"nix-build-group-name", func(v string) error { s.NixBuildGroupName = v; return nil }},
		{"nix-build-group-id", func(v string) error { return setUint32(&s.NixBuildGroupID, v) }},
		{"nix-build-user-prefix", func(v string) error { s.NixBuildUserPrefix = v; return nil }},
		{"nix-build-user-count", func(v string) error { return setInt(&s.NixBuildUserCount, v) }},
		{"nix-build-user-id-base", func(v string) error { return setUint32(&s.NixBuildUserIDBase, v) }},
		{"channels", func(v string) error { s.Channels = splitNonEmpty(v, ","); return nil }},
		{"modify-profile", func(v string) error { return setBool(&s.ModifyProfile, v) }},
		{"nix-package-url", func(v string) error { s.NixPackageURL = v; return nil }},
		{"extra-conf", func(v string) error { s.ExtraConf = splitNonEmpty(v, "\n"); return nil }},
		{"force", func(v string) error { return setBool(&s.Force, v) }},
		{"diagnostic-endpoint", func(v string) error { s.DiagnosticEndpoint = v; return nil }},
		{"parallelism", func(v string) error { return setInt(&s.Parallelism, v) }},
	}
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an integer: %q", v)
	}
	*dst = n
	return nil
}

func setUint32(dst *uint32, v string) error {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("not an unsigned integer: %q", v)
	}
	*dst = uint32(n)
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("not a boolean: %q", v)
	}
	*dst = b
	return nil
}

func splitNonEmpty(v, sep string) []string {
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
