package main

import (
	"github.com/spf13/cobra"

	"github.com/atomikpanda/nixup/internal/settings"
)

// settingFlagNames are the flags that mirror planner settings. Each also
// has a NIXUP_* environment form and a key in the optional config file;
// flags take highest precedence because cobra writes them last.
var settingFlagNames = []string{
	"nix-build-group-name",
	"nix-build-group-id",
	"nix-build-user-prefix",
	"nix-build-user-count",
	"nix-build-user-id-base",
	"channels",
	"modify-profile",
	"nix-package-url",
	"extra-conf",
	"force",
	"diagnostic-endpoint",
	"parallelism",
}

func addSettingsFlags(cmd *cobra.Command, s *settings.Settings) {
	f := cmd.Flags()
	f.StringVar(&s.NixBuildGroupName, "nix-build-group-name", s.NixBuildGroupName, "name of the Nix build group")
	f.Uint32Var(&s.NixBuildGroupID, "nix-build-group-id", s.NixBuildGroupID, "GID of the Nix build group")
	f.StringVar(&s.NixBuildUserPrefix, "nix-build-user-prefix", s.NixBuildUserPrefix, "prefix of the Nix build user names")
	f.IntVar(&s.NixBuildUserCount, "nix-build-user-count", s.NixBuildUserCount, "number of build users to create")
	f.Uint32Var(&s.NixBuildUserIDBase, "nix-build-user-id-base", s.NixBuildUserIDBase, "base UID for build users (user N gets base+N)")
	f.StringSliceVar(&s.Channels, "channels", s.Channels, "channels to configure, as name=url")
	f.BoolVar(&s.ModifyProfile, "modify-profile", s.ModifyProfile, "write the Nix stanza into the system shell profiles")
	f.StringVar(&s.NixPackageURL, "nix-package-url", s.NixPackageURL, "URL of the Nix release tarball")
	f.StringArrayVar(&s.ExtraConf, "extra-conf", s.ExtraConf, "extra nix.conf lines (repeatable)")
	f.BoolVar(&s.Force, "force", s.Force, "install even when a completed receipt already exists")
	f.StringVar(&s.DiagnosticEndpoint, "diagnostic-endpoint", s.DiagnosticEndpoint, "diagnostics URL; empty disables all reporting")
	f.IntVar(&s.Parallelism, "parallelism", s.Parallelism, "bound on concurrently executed independent steps (0 = auto)")
}

// markConfiguredFlags records which settings the operator overrode on the
// command line. Only the names feed diagnostics.
func markConfiguredFlags(cmd *cobra.Command, s *settings.Settings) {
	for _, name := range settingFlagNames {
		if cmd.Flags().Changed(name) {
			s.MarkConfigured(name)
		}
	}
}
