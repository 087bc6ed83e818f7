// Package reverter drives a receipt backward: every completed action is
// reverted in strict reverse order of execution, best-effort. Individual
// failures are recorded on the action and aggregated; they never halt the
// walk, because a partial uninstall is worth more than an atomic one.
package reverter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/executor"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/receipt"
)

// RevertError aggregates the failures of a partial revert. The receipt
// stays on disk with per-action annotations so a later uninstall can retry.
type RevertError struct {
	Failed int
	Err    error // joined individual failures
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%d action(s) failed to revert; the receipt was kept so uninstall can be retried: %v", e.Failed, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }

// Reverter walks a plan backward and keeps the receipt current.
type Reverter struct {
	Store *receipt.Store
	Sink  executor.Sink
	Log   *slog.Logger
}

// New returns a Reverter persisting to store and reporting to sink.
func New(store *receipt.Store, sink executor.Sink) *Reverter {
	return &Reverter{Store: store, Sink: sink, Log: slog.Default()}
}

// Run reverts every completed action of p in reverse plan order. Pending
// actions never executed and are skipped; already-reverted actions are
// skipped too. After an error-free pass the receipt is deleted. After a
// partial pass the receipt remains, annotated, and a *RevertError is
// returned.
func (r *Reverter) Run(ctx context.Context, p *plan.Plan) error {
	log := r.logger()
	var errs []error

	for i := len(p.Actions) - 1; i >= 0; i-- {
		a := p.Actions[i]
		if a.State != action.Completed {
			log.Debug("skipping action not in Completed state", "action", a.Action.Tag(), "state", string(a.State))
			continue
		}

		desc := a.Action.Describe()
		log.Info("reverting action", "action", a.Action.Tag(), "description", desc)
		executor.Emit(r.Sink, executor.Event{Kind: executor.RevertStarted, Tag: a.Action.Tag(), Description: desc})

		revErr := a.Revert(ctx)

		if err := r.Store.Write(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// The walk itself removed the receipt directory (reverting the
				// directory is typically the final step); nothing left to record.
				log.Debug("receipt directory gone, skipping checkpoint")
			} else {
				// Any other receipt I/O failure is fatal to the walk; on-disk
				// state stays as-is.
				errs = append(errs, err)
				return &RevertError{Failed: len(errs), Err: errors.Join(errs...)}
			}
		}

		if revErr != nil {
			log.Error("revert failed, continuing", "action", a.Action.Tag(), "error", revErr)
			executor.Emit(r.Sink, executor.Event{Kind: executor.RevertFailed, Tag: a.Action.Tag(), Err: revErr.Error()})
			errs = append(errs, revErr)
			continue
		}
		executor.Emit(r.Sink, executor.Event{Kind: executor.RevertSucceeded, Tag: a.Action.Tag()})
	}

	if len(errs) > 0 {
		return &RevertError{Failed: len(errs), Err: errors.Join(errs...)}
	}

	executor.Emit(r.Sink, executor.Event{Kind: executor.RevertComplete})
	log.Info("revert complete, removing receipt")
	return r.Store.Delete()
}

func (r *Reverter) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
