// Package action defines the unit of host mutation the installer is built
// from: a tagged, serializable step that can describe itself without side
// effects, execute idempotently, and revert what it did. The package also
// carries the per-action phase state machine and the tag registry used to
// reconstruct actions from a persisted receipt.
package action

import "context"

// Action is a single reversible host mutation.
//
// Contracts every implementation must honour:
//   - Tag, Describe, and Explain are pure; they never touch the host.
//   - Execute begins with a state probe: when the desired postcondition
//     already holds it returns nil without side effects. This is what makes
//     resuming an interrupted install safe.
//   - Revert begins with a probe too and succeeds when the effect is already
//     absent. It removes only what Execute put there.
//   - The concrete struct marshals to JSON carrying everything needed to
//     revert after a round-trip through the receipt, including facts captured
//     during Execute (e.g. whether a file pre-existed and its prior bytes).
type Action interface {
	// Tag returns the stable kind identifier recorded in the receipt.
	Tag() string
	// Describe returns a one-line human-readable synopsis.
	Describe() string
	// Explain returns additional lines describing the side effects Execute
	// will have, suitable for plan review.
	Explain() []string
	// Execute applies the mutation to the host.
	Execute(ctx context.Context) error
	// Revert removes the mutation from the host. It tolerates partial or
	// missing prior state.
	Revert(ctx context.Context) error
}
