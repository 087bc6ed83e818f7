// Package plan defines the ordered bundle of actions a planner emits and the
// executor consumes, plus its receipt serialization and the version
// compatibility rule for reverting old receipts.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atomikpanda/nixup/internal/action"
)

// InstallerVersion is the version of this installer build. Overridden at
// link time by the release pipeline.
var InstallerVersion = "0.4.0"

// Plan is an ordered sequence of top-level actions plus the metadata needed
// to review, persist, and later revert them. Plans carry no execution state
// of their own; state lives on the actions.
type Plan struct {
	Version            string
	Planner            string
	Settings           map[string]any
	Triple             string
	OSName             string
	OSVersion          string
	DiagnosticEndpoint string
	Actions            []*action.Stateful
}

type planJSON struct {
	Version            string             `json:"version"`
	Planner            plannerJSON        `json:"planner"`
	Triple             string             `json:"triple"`
	OSName             string             `json:"os_name"`
	OSVersion          string             `json:"os_version"`
	Actions            []*action.Stateful `json:"actions"`
	DiagnosticEndpoint string             `json:"diagnostic_endpoint"`
}

type plannerJSON struct {
	Tag      string         `json:"tag"`
	Settings map[string]any `json:"settings"`
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planJSON{
		Version:            p.Version,
		Planner:            plannerJSON{Tag: p.Planner, Settings: p.Settings},
		Triple:             p.Triple,
		OSName:             p.OSName,
		OSVersion:          p.OSVersion,
		Actions:            p.Actions,
		DiagnosticEndpoint: p.DiagnosticEndpoint,
	})
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Version = raw.Version
	p.Planner = raw.Planner.Tag
	p.Settings = raw.Planner.Settings
	p.Triple = raw.Triple
	p.OSName = raw.OSName
	p.OSVersion = raw.OSVersion
	p.Actions = raw.Actions
	p.DiagnosticEndpoint = raw.DiagnosticEndpoint
	return nil
}

// Describe returns the numbered review listing shown before confirmation.
// With explain, each action's side-effect lines are included.
func (p *Plan) Describe(explain bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "nixup install plan (planner: %s, version %s)\n", p.Planner, p.Version)
	fmt.Fprintf(&b, "target: %s (%s %s)\n\n", p.Triple, p.OSName, p.OSVersion)
	b.WriteString("Planned actions:\n")
	for i, a := range p.Actions {
		fmt.Fprintf(&b, "%3d. %s\n", i+1, a.Action.Describe())
		if explain {
			for _, line := range a.Action.Explain() {
				fmt.Fprintf(&b, "       %s\n", line)
			}
		}
	}
	return b.String()
}

// DescribeRevert returns the listing shown before a revert: the completed
// actions, in the reverse order they will be undone.
func (p *Plan) DescribeRevert() string {
	var b strings.Builder
	b.WriteString("Actions to revert (in order):\n")
	n := 0
	for i := len(p.Actions) - 1; i >= 0; i-- {
		a := p.Actions[i]
		if a.State != action.Completed {
			continue
		}
		n++
		fmt.Fprintf(&b, "%3d. Undo: %s\n", n, a.Action.Describe())
	}
	if n == 0 {
		b.WriteString("  (nothing completed; nothing to revert)\n")
	}
	return b.String()
}

// AllCompleted reports whether every top-level action has completed.
func (p *Plan) AllCompleted() bool {
	for _, a := range p.Actions {
		if a.State != action.Completed {
			return false
		}
	}
	return true
}

// AllReverted reports whether no action remains in the Completed state.
func (p *Plan) AllReverted() bool {
	for _, a := range p.Actions {
		if a.State == action.Completed {
			return false
		}
	}
	return true
}
