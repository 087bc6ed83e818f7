package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/atomikpanda/nixup/internal/color"
	"github.com/atomikpanda/nixup/internal/diagnostics"
	"github.com/atomikpanda/nixup/internal/elevate"
	"github.com/atomikpanda/nixup/internal/eventlog"
	"github.com/atomikpanda/nixup/internal/executor"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/planner"
	"github.com/atomikpanda/nixup/internal/platform"
	"github.com/atomikpanda/nixup/internal/receipt"
	"github.com/atomikpanda/nixup/internal/reverter"
	"github.com/atomikpanda/nixup/internal/settings"
)

func installCmd(s *settings.Settings) *cobra.Command {
	var noRevert bool

	cmd := &cobra.Command{
		Use:   "install [planner]",
		Short: "Plan, confirm, and execute a Nix installation",
		Long: `Builds an install plan for this host (with the given planner, or the
default for the OS), shows it, and executes it after confirmation. The
receipt written to ` + "`/nix/receipt.json`" + ` records every step so the
installation can be resumed if interrupted and reverted by ` + "`nixup uninstall`" + `.`,
		Example: `  nixup install
  nixup install linux-multi --nix-build-user-count 8
  nixup install --no-confirm`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markConfiguredFlags(cmd, s)

			if elevate.NeedsElevation() {
				fmt.Fprintln(os.Stderr, "nixup needs root privileges to install Nix; re-running under sudo")
				return elevate.Rerun(s.EnvAllowList())
			}

			ctx, stop := withSignalHandling(cmd.Context())
			defer stop()

			chosen, err := pickPlanner(args)
			if err != nil {
				fail(exitFailure, err)
			}

			store := receipt.New()
			lock, err := store.Acquire()
			if err != nil {
				fail(exitFailure, err)
			}
			defer lock.Release()

			p, err := planOrResume(ctx, chosen, s, store)
			if err != nil {
				fail(exitFailure, err)
			}

			fmt.Println(p.Describe(explain))
			ok, err := confirm("Apply this plan to your system?")
			if err != nil {
				fail(exitFailure, err)
			}
			if !ok {
				fmt.Println("Okay, nothing was changed.")
				os.Exit(exitFailure)
			}

			diag := newDiagnostics(p, s)
			diag.Send(ctx, diagnostics.Install, diagnostics.Pending, "")

			sink := executor.Multi(&consoleSink{out: os.Stdout}, eventlog.New())
			execErr := executor.New(store, sink).Run(ctx, p)
			if execErr == nil {
				finishInstall(ctx, diag)
				return nil
			}

			status := diagnostics.Failure
			if errors.Is(execErr, context.Canceled) {
				status = diagnostics.Cancelled
			}
			diag.Send(ctx, diagnostics.Install, status, diagnostics.Variant(execErr))
			fmt.Fprintln(os.Stderr, color.BoldRed(execErr.Error()))

			// The receipt on disk already reflects everything that completed;
			// offer to walk it back.
			if noRevert {
				fmt.Fprintln(os.Stderr, "revert disabled by --no-revert; the receipt remains for a later `nixup uninstall`")
				os.Exit(exitRevertDeclined)
			}
			fmt.Fprintln(os.Stderr, color.BoldYellow("\nInstallation failed; offering to revert what completed."))
			fmt.Fprintln(os.Stderr, p.DescribeRevert())
			ok, err = confirm("Attempt best-effort revert?")
			if err != nil {
				fail(exitRevertDeclined, err)
			}
			if !ok {
				fmt.Fprintln(os.Stderr, "Keeping the partial install; revert later with `nixup uninstall`.")
				os.Exit(exitRevertDeclined)
			}

			runRevert(ctx, store, sink, p, diag)
			os.Exit(exitReverted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRevert, "no-revert", false, "on failure, keep the partial install instead of reverting")
	addSettingsFlags(cmd, s)
	return cmd
}

// planOrResume returns a fresh plan, or the existing receipt when a prior
// interrupted install with the same planner and settings left one behind.
func planOrResume(ctx context.Context, chosen planner.Planner, s *settings.Settings, store *receipt.Store) (*plan.Plan, error) {
	fresh, err := chosen.Plan(ctx, s)
	if err != nil {
		return nil, err
	}
	if !store.Exists() {
		return fresh, nil
	}

	existing, err := store.Load()
	if err != nil {
		return nil, err
	}
	if existing.Planner != fresh.Planner {
		return nil, fmt.Errorf("found an existing receipt from planner %q; uninstall it before installing with %q", existing.Planner, fresh.Planner)
	}
	if !sameSettings(existing.Settings, fresh.Settings) {
		return nil, fmt.Errorf("found an existing receipt with different settings; uninstall it before installing with new settings")
	}
	if existing.AllCompleted() {
		if s.Force {
			return fresh, nil
		}
		return nil, fmt.Errorf("Nix is already installed by nixup (receipt at %s); uninstall first, or pass --force to reinstall", store.Path)
	}
	fmt.Println(color.Cyan("Resuming the interrupted install recorded in the receipt."))
	return existing, nil
}

func pickPlanner(args []string) (planner.Planner, error) {
	if len(args) == 1 {
		return planner.Builtin(args[0])
	}
	return planner.Default()
}

// finishInstall places the uninstall helper binary and reports success.
func finishInstall(ctx context.Context, diag *diagnostics.Client) {
	if err := placeSelf("/nix/nixup"); err != nil {
		fmt.Fprintln(os.Stderr, color.Yellow("warning: could not place /nix/nixup: "+err.Error()))
	}
	diag.Send(ctx, diagnostics.Install, diagnostics.Success, "")
	fmt.Println(color.BoldGreen("\nNix was installed successfully!"))
	fmt.Println("Open a new shell, or run `. /nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh`")
	fmt.Println("Uninstall at any time with `/nix/nixup uninstall`.")
}

// runRevert walks the receipt backward and reports the outcome.
func runRevert(ctx context.Context, store *receipt.Store, sink executor.Sink, p *plan.Plan, diag *diagnostics.Client) {
	// Revert proceeds even when the install stopped due to cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := reverter.New(store, sink).Run(ctx, p); err != nil {
		diag.Send(ctx, diagnostics.Uninstall, diagnostics.Failure, diagnostics.Variant(err))
		fmt.Fprintln(os.Stderr, color.BoldRed(err.Error()))
		return
	}
	diag.Send(ctx, diagnostics.Uninstall, diagnostics.Success, "")
	fmt.Println(color.Bold("The partial Nix install was reverted."))
}

// placeSelf copies the running binary to path so uninstall works without
// the original download.
func placeSelf(path string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(self)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o755)
}

// withSignalHandling cancels the context on the first interrupt and exits
// immediately on the second.
func withSignalHandling(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, color.BoldYellow("\ninterrupt: finishing the current step, then stopping (interrupt again to abort immediately)"))
		cancel()
		<-sigs
		fmt.Fprintln(os.Stderr, color.BoldRed("aborting; the receipt reflects the last completed step"))
		os.Exit(exitFailure)
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// confirm asks the operator a yes/no question, defaulting to no. With
// --no-confirm the answer is yes; otherwise a non-interactive stdin is an
// error rather than a silent yes.
func confirm(title string) (bool, error) {
	if noConfirm {
		return true, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false, fmt.Errorf("stdin is not a terminal; pass --no-confirm to proceed without the confirmation gate")
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

func newDiagnostics(p *plan.Plan, s *settings.Settings) *diagnostics.Client {
	return diagnostics.NewClient(p.DiagnosticEndpoint, diagnostics.Report{
		Version:            p.Version,
		Planner:            p.Planner,
		ConfiguredSettings: s.ConfiguredNames(),
		OSName:             p.OSName,
		OSVersion:          p.OSVersion,
		Triple:             p.Triple,
		IsCI:               platform.IsCI(),
	})
}

func sameSettings(a, b map[string]any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// consoleSink renders lifecycle events as the terse progress lines shown
// during install and uninstall.
type consoleSink struct {
	out io.Writer
}

func (c *consoleSink) Event(e executor.Event) {
	switch e.Kind {
	case executor.ActionStarted:
		fmt.Fprintf(c.out, "  -> %s\n", e.Description)
	case executor.ActionFailed:
		fmt.Fprintf(c.out, "  %s %s\n", color.BoldRed("!!"), e.Err)
	case executor.RevertStarted:
		fmt.Fprintf(c.out, "  <- undo %s\n", e.Description)
	case executor.RevertFailed:
		fmt.Fprintf(c.out, "  %s %s\n", color.BoldRed("!!"), e.Err)
	case executor.PlanComplete:
		fmt.Fprintf(c.out, "  %s\n", color.Green("done"))
	}
}
