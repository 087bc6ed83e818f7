// Package executor drives a pending plan to completion: top-level actions
// run strictly sequentially in plan order, the receipt is re-persisted after
// every terminal transition, and the first failure stops scheduling so the
// front-end can offer a revert.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/receipt"
)

// ExecuteError wraps an action failure during install. It triggers the
// offer-to-revert path in the front-end.
type ExecuteError struct {
	Tag         string
	Description string
	Err         error
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("install failed at %q: %v", e.Description, e.Err)
}

func (e *ExecuteError) Unwrap() error { return e.Err }

// Executor drives a plan forward and keeps the receipt current.
type Executor struct {
	Store *receipt.Store
	Sink  Sink
	Log   *slog.Logger
}

// New returns an Executor persisting to store and reporting to sink.
func New(store *receipt.Store, sink Sink) *Executor {
	return &Executor{Store: store, Sink: sink, Log: slog.Default()}
}

// Run executes every top-level action of p in order. The receipt is
// re-persisted after each action reaches a terminal state, so a crash at
// any point leaves a resumable receipt on disk. Already-completed actions
// (a resumed install) are skipped.
//
// On failure or cancellation the plan is left as-is on disk and an error is
// returned: context.Canceled for cooperative cancellation, *ExecuteError
// for an action failure, anything else is a receipt I/O problem.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) error {
	log := e.logger()

	for _, a := range p.Actions {
		if err := ctx.Err(); err != nil {
			log.Info("install cancelled before action", "action", a.Action.Tag())
			Emit(e.Sink, Event{Kind: PlanAborted, Err: err.Error()})
			return err
		}
		if a.State == action.Completed {
			log.Debug("skipping completed action", "action", a.Action.Tag())
			continue
		}

		desc := a.Action.Describe()
		log.Info("executing action", "action", a.Action.Tag(), "description", desc)
		Emit(e.Sink, Event{Kind: ActionStarted, Tag: a.Action.Tag(), Description: desc})

		execErr := a.Execute(ctx)

		if err := e.Store.Write(p); err != nil {
			if execErr == nil {
				// A receipt that cannot record a completed mutation is fatal:
				// continuing would leave effects the receipt does not know about.
				return err
			}
			// The install already failed; the missing checkpoint only loses
			// the record of this non-transition.
			log.Warn("could not update receipt after failed action", "error", err)
		}

		if execErr != nil {
			log.Error("action failed", "action", a.Action.Tag(), "error", execErr)
			Emit(e.Sink, Event{Kind: ActionFailed, Tag: a.Action.Tag(), Description: desc, Err: execErr.Error()})
			Emit(e.Sink, Event{Kind: PlanAborted, Err: execErr.Error()})
			if errors.Is(execErr, context.Canceled) {
				return context.Canceled
			}
			return &ExecuteError{Tag: a.Action.Tag(), Description: desc, Err: execErr}
		}

		log.Info("action succeeded", "action", a.Action.Tag())
		Emit(e.Sink, Event{Kind: ActionSucceeded, Tag: a.Action.Tag()})
	}

	Emit(e.Sink, Event{Kind: PlanComplete})
	log.Info("install plan complete", "actions", len(p.Actions))
	return nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
