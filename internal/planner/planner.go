// Package planner inspects the host and emits an install plan. Planners are
// the only component that decides WHAT to install; everything downstream
// (executor, receipt, reverter) treats the plan as opaque ordered actions.
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/platform"
	"github.com/atomikpanda/nixup/internal/settings"
)

// Planner emits a plan for one installation shape.
type Planner interface {
	// Name is the stable planner tag recorded in the receipt.
	Name() string
	// Plan probes the host and returns the pending plan, or an
	// *UnsupportedError when the host cannot take this installation shape.
	Plan(ctx context.Context, s *settings.Settings) (*plan.Plan, error)
}

// UnsupportedError reports a host no builtin planner can install onto.
// It is fatal before any mutation; no receipt is written.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string { return e.Reason }

var builtins = map[string]Planner{}

func register(p Planner) {
	builtins[p.Name()] = p
}

// Builtin returns the named planner.
func Builtin(name string) (Planner, error) {
	p, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown planner %q (available: %v)", name, Names())
	}
	return p, nil
}

// Default returns the planner for the current host.
func Default() (Planner, error) {
	switch platform.Current() {
	case "linux":
		return Builtin("linux-multi")
	case "darwin":
		return Builtin("darwin-multi")
	default:
		return nil, &UnsupportedError{Reason: fmt.Sprintf("nixup does not support %s hosts", platform.Current())}
	}
}

// Names returns the registered planner names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// newPlan fills in the metadata every planner's plan shares.
func newPlan(name string, s *settings.Settings) *plan.Plan {
	return &plan.Plan{
		Version:            plan.InstallerVersion,
		Planner:            name,
		Settings:           s.Describe(),
		Triple:             platform.Triple(),
		OSName:             platform.Current(),
		OSVersion:          platform.OSVersion(),
		DiagnosticEndpoint: s.DiagnosticEndpoint,
	}
}
