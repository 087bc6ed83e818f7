package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomikpanda/nixup/internal/color"
	"github.com/atomikpanda/nixup/internal/diagnostics"
	"github.com/atomikpanda/nixup/internal/elevate"
	"github.com/atomikpanda/nixup/internal/eventlog"
	"github.com/atomikpanda/nixup/internal/executor"
	"github.com/atomikpanda/nixup/internal/receipt"
	"github.com/atomikpanda/nixup/internal/reverter"
	"github.com/atomikpanda/nixup/internal/settings"
)

func uninstallCmd(s *settings.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Revert a Nix installation from its receipt",
		Long: `Loads the receipt at ` + "`/nix/receipt.json`" + ` and reverts every completed
action in reverse order, best-effort: individual failures are recorded in
the receipt and the walk continues, so a later uninstall can retry what
failed. The receipt is deleted only after an error-free pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if elevate.NeedsElevation() {
				fmt.Fprintln(os.Stderr, "nixup needs root privileges to uninstall Nix; re-running under sudo")
				return elevate.Rerun(s.EnvAllowList())
			}

			ctx, stop := withSignalHandling(cmd.Context())
			defer stop()

			store := receipt.New()
			lock, err := store.Acquire()
			if err != nil {
				fail(exitFailure, err)
			}
			defer lock.Release()

			p, err := store.Load()
			if err != nil {
				fail(exitFailure, err)
			}

			fmt.Println(p.DescribeRevert())
			ok, err := confirm("Revert this Nix installation?")
			if err != nil {
				fail(exitFailure, err)
			}
			if !ok {
				fmt.Println("Okay, nothing was changed.")
				os.Exit(exitFailure)
			}

			diag := newDiagnostics(p, s)
			diag.Send(ctx, diagnostics.Uninstall, diagnostics.Pending, "")

			sink := executor.Multi(&consoleSink{out: os.Stdout}, eventlog.New())
			if err := reverter.New(store, sink).Run(ctx, p); err != nil {
				diag.Send(ctx, diagnostics.Uninstall, diagnostics.Failure, diagnostics.Variant(err))
				fail(exitFailure, err)
			}

			diag.Send(ctx, diagnostics.Uninstall, diagnostics.Success, "")
			fmt.Println(color.BoldGreen("Nix was uninstalled."))
			return nil
		},
	}
}
