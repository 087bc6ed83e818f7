// nixup installs the Nix package manager from an explicit, reviewable plan
// and keeps a receipt from which the installation can be undone.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomikpanda/nixup/internal/color"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/platform"
	"github.com/atomikpanda/nixup/internal/settings"
)

// Exit codes. Install failures distinguish how far the revert offer got.
const (
	exitOK = 0
	// exitFailure: fatal before any mutation, or an unrecoverable error.
	exitFailure = 1
	// exitRevertDeclined: install failed and the operator declined the revert.
	exitRevertDeclined = 2
	// exitReverted: install failed and a best-effort revert ran.
	exitReverted = 3
)

var (
	verbose   bool
	noConfirm bool
	explain   bool
)

func main() {
	color.Init()

	s := settings.Default(platform.Triple())
	if err := s.LoadFile(configPath()); err != nil {
		fmt.Fprintln(os.Stderr, color.BoldRed(err.Error()))
		os.Exit(exitFailure)
	}
	if err := s.ApplyEnv(); err != nil {
		fmt.Fprintln(os.Stderr, color.BoldRed(err.Error()))
		os.Exit(exitFailure)
	}

	root := buildRoot(s)
	if err := root.Execute(); err != nil {
		os.Exit(exitFailure)
	}
}

func buildRoot(s *settings.Settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "nixup",
		Short: "A planned, journaled, reversible Nix installer",
		Long: `nixup installs the Nix package manager by first constructing an explicit
plan of every mutation it will make, asking for confirmation, and then
executing the plan while persisting a receipt at ` + "`/nix/receipt.json`" + `
from which the installation can later be reverted.`,
		Version:      plan.InstallerVersion,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show debug output")
	root.PersistentFlags().BoolVar(&noConfirm, "no-confirm", false, "skip the interactive confirmation gate")
	root.PersistentFlags().BoolVar(&explain, "explain", false, "include each action's side effects in the plan listing")

	root.AddCommand(
		installCmd(s),
		uninstallCmd(s),
		planCmd(s),
		logCmd(),
	)

	return root
}

// configPath returns the optional settings file location.
func configPath() string {
	if p := os.Getenv(settings.EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return "/etc/nixup/config.yaml"
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// fail prints err and exits with code.
func fail(code int, err error) {
	fmt.Fprintln(os.Stderr, color.BoldRed(err.Error()))
	os.Exit(code)
}
