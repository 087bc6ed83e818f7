package action

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

func init() {
	Register("group", func() Action { return &Group{} })
}

// Group composes child actions under a single name. Children are driven
// sequentially in declared order unless Independent is set, in which case
// they run concurrently under a bounded limit. Independent children must be
// mutually commutative: they may only target disjoint host resources.
type Group struct {
	Name        string      `json:"name"`
	Independent bool        `json:"independent,omitempty"`
	MaxParallel int         `json:"max_parallel,omitempty"`
	Children    []*Stateful `json:"children"`
}

func (g *Group) Tag() string      { return "group" }
func (g *Group) Describe() string { return g.Name }

func (g *Group) Explain() []string {
	var lines []string
	for _, c := range g.Children {
		lines = append(lines, c.Action.Describe())
		lines = append(lines, c.Action.Explain()...)
	}
	return lines
}

// Execute drives the children forward. On any child failure the already
// completed children are reverted in reverse order and the execute error is
// propagated (revert errors from that cleanup are attached to it).
func (g *Group) Execute(ctx context.Context) error {
	var err error
	if g.Independent {
		err = ExecuteIndependent(ctx, g.limit(), g.Children)
	} else {
		err = ExecuteSequential(ctx, g.Children)
	}
	if err == nil {
		return nil
	}
	if revErr := RevertReverse(ctx, g.Children); revErr != nil {
		return fmt.Errorf("%w (additionally, reverting completed children failed: %v)", err, revErr)
	}
	return err
}

// Revert drives the children backward in reverse declared order,
// best-effort.
func (g *Group) Revert(ctx context.Context) error {
	return RevertReverse(ctx, g.Children)
}

func (g *Group) limit() int {
	if g.MaxParallel > 0 {
		return g.MaxParallel
	}
	return DefaultParallelism()
}

// DefaultParallelism is the bound applied to independent children when the
// planner did not set one.
func DefaultParallelism() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

// ExecuteSequential drives children forward in order, stopping at the first
// failure. The context is checked between children so cancellation takes
// effect at step boundaries.
func ExecuteSequential(ctx context.Context, children []*Stateful) error {
	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteIndependent drives children concurrently, bounded by limit. The
// first failure cancels the remaining children's context; all in-flight
// children are awaited (never abandoned) before the error is returned.
func ExecuteIndependent(ctx context.Context, limit int, children []*Stateful) error {
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for _, c := range children {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.Execute(ctx)
		})
	}
	return eg.Wait()
}

// RevertReverse reverts children in reverse declared order, best-effort:
// every child gets a chance and individual failures are aggregated.
func RevertReverse(ctx context.Context, children []*Stateful) error {
	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Revert(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
