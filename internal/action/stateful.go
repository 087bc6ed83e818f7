package action

import (
	"context"
	"encoding/json"
	"fmt"
)

// Stateful pairs an Action with its phase state and any revert errors
// recorded against it. It is the element type of a plan's action list and
// the unit the receipt persists.
type Stateful struct {
	Action Action
	State  State
	// Errors holds revert failures from a partial uninstall so a later run
	// can retry with full context. Execute failures are not recorded here;
	// they abort the install instead.
	Errors []string
}

// Plan commits a to a plan, moving it from Uninitialized to Pending.
func Plan(a Action) *Stateful {
	return &Stateful{Action: a, State: Pending}
}

// PlanCompleted commits a to a plan already in the Completed state. Planners
// use this when the plan-time probe shows the action's effect is already
// present on the host.
func PlanCompleted(a Action) *Stateful {
	return &Stateful{Action: a, State: Completed}
}

// Execute drives the action Pending→Completed. Executing an already
// Completed action is a no-op (the resume path). Any other starting state
// is a TransitionError.
func (s *Stateful) Execute(ctx context.Context) error {
	switch s.State {
	case Completed:
		return nil
	case Pending:
	default:
		return &TransitionError{Tag: s.Action.Tag(), From: s.State, Op: "execute"}
	}
	if err := s.Action.Execute(ctx); err != nil {
		return fmt.Errorf("%s: %w", s.Action.Describe(), err)
	}
	s.State = Completed
	return nil
}

// Revert drives the action Completed→Reverted. Actions that never executed
// (Pending or Uninitialized) and actions already Reverted are skipped with
// no error. A revert failure is recorded on the action and returned; the
// caller decides whether to continue with other actions.
func (s *Stateful) Revert(ctx context.Context) error {
	switch s.State {
	case Pending, Uninitialized, Reverted:
		return nil
	case Completed:
	default:
		return &TransitionError{Tag: s.Action.Tag(), From: s.State, Op: "revert"}
	}
	if err := s.Action.Revert(ctx); err != nil {
		err = fmt.Errorf("revert %s: %w", s.Action.Describe(), err)
		s.Errors = append(s.Errors, err.Error())
		return err
	}
	s.State = Reverted
	s.Errors = nil
	return nil
}

// statefulJSON is the receipt form of a Stateful.
type statefulJSON struct {
	Action string          `json:"action"`
	State  State           `json:"state"`
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors,omitempty"`
}

// MarshalJSON serializes the action payload under its tag so the registry
// can reconstruct it.
func (s *Stateful) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(s.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal action %q: %w", s.Action.Tag(), err)
	}
	return json.Marshal(statefulJSON{
		Action: s.Action.Tag(),
		State:  s.State,
		Data:   data,
		Errors: s.Errors,
	})
}

// UnmarshalJSON reconstructs the concrete action through the registry.
func (s *Stateful) UnmarshalJSON(data []byte) error {
	var raw statefulJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a, err := Decode(raw.Action, raw.Data)
	if err != nil {
		return err
	}
	s.Action = a
	s.State = raw.State
	s.Errors = raw.Errors
	return nil
}
