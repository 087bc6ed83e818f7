package action

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// testStep is a registered fake action used across this package's tests.
type testStep struct {
	Name string `json:"name"`

	ExecuteCalls int  `json:"execute_calls"`
	RevertCalls  int  `json:"revert_calls"`
	FailExecute  bool `json:"fail_execute"`
	FailRevert   bool `json:"fail_revert"`
}

func init() {
	Register("test-step", func() Action { return &testStep{} })
}

func (s *testStep) Tag() string       { return "test-step" }
func (s *testStep) Describe() string  { return "Test step " + s.Name }
func (s *testStep) Explain() []string { return []string{"does nothing real"} }

func (s *testStep) Execute(ctx context.Context) error {
	s.ExecuteCalls++
	if s.FailExecute {
		return errors.New("execute boom")
	}
	return nil
}

func (s *testStep) Revert(ctx context.Context) error {
	s.RevertCalls++
	if s.FailRevert {
		return errors.New("revert boom")
	}
	return nil
}

func TestExecuteTransitions(t *testing.T) {
	ctx := context.Background()
	step := &testStep{Name: "a"}
	st := Plan(step)

	if st.State != Pending {
		t.Fatalf("Plan() state = %s, want Pending", st.State)
	}
	if err := st.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if st.State != Completed {
		t.Errorf("state after execute = %s, want Completed", st.State)
	}

	// Executing a Completed action is the resume path: a no-op.
	if err := st.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if step.ExecuteCalls != 1 {
		t.Errorf("execute calls = %d, want 1 (second execute must be skipped)", step.ExecuteCalls)
	}
}

func TestExecuteFailureKeepsState(t *testing.T) {
	st := Plan(&testStep{Name: "a", FailExecute: true})
	if err := st.Execute(context.Background()); err == nil {
		t.Fatal("want error from failing execute")
	}
	if st.State != Pending {
		t.Errorf("state after failed execute = %s, want Pending", st.State)
	}
}

func TestRevertSkipsNeverExecuted(t *testing.T) {
	step := &testStep{Name: "a"}
	st := Plan(step)
	if err := st.Revert(context.Background()); err != nil {
		t.Fatal(err)
	}
	if step.RevertCalls != 0 {
		t.Errorf("revert calls = %d, want 0 for a Pending action", step.RevertCalls)
	}
	if st.State != Pending {
		t.Errorf("state = %s, want Pending", st.State)
	}
}

func TestRevertCompletedAction(t *testing.T) {
	ctx := context.Background()
	step := &testStep{Name: "a"}
	st := Plan(step)
	if err := st.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.Revert(ctx); err != nil {
		t.Fatal(err)
	}
	if st.State != Reverted {
		t.Errorf("state = %s, want Reverted", st.State)
	}
	// Reverted is terminal; a second revert is skipped.
	if err := st.Revert(ctx); err != nil {
		t.Fatal(err)
	}
	if step.RevertCalls != 1 {
		t.Errorf("revert calls = %d, want 1", step.RevertCalls)
	}
}

func TestRevertFailureRecorded(t *testing.T) {
	ctx := context.Background()
	st := Plan(&testStep{Name: "a", FailRevert: true})
	if err := st.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.Revert(ctx); err == nil {
		t.Fatal("want error from failing revert")
	}
	if st.State != Completed {
		t.Errorf("state = %s, want Completed after failed revert", st.State)
	}
	if len(st.Errors) != 1 {
		t.Fatalf("errors = %v, want one recorded revert failure", st.Errors)
	}
}

func TestExecuteFromUninitializedIsIllegal(t *testing.T) {
	st := &Stateful{Action: &testStep{}, State: Uninitialized}
	err := st.Execute(context.Background())
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
}

func TestStatefulJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := Plan(&testStep{Name: "roundtrip"})
	if err := st.Execute(ctx); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}

	var got Stateful
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.State != Completed {
		t.Errorf("state = %s, want Completed", got.State)
	}
	step, ok := got.Action.(*testStep)
	if !ok {
		t.Fatalf("decoded action is %T, want *testStep", got.Action)
	}
	if step.Name != "roundtrip" {
		t.Errorf("name = %q, want %q", step.Name, "roundtrip")
	}
	// The round-tripped action must still be revertible.
	if err := got.Revert(ctx); err != nil {
		t.Fatal(err)
	}
	if got.State != Reverted {
		t.Errorf("state = %s, want Reverted", got.State)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode("no-such-action", json.RawMessage(`{}`)); err == nil {
		t.Fatal("want error for unknown tag")
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := Decode("test-step", json.RawMessage(`{"name": 42`)); err == nil {
		t.Fatal("want error for malformed payload")
	}
}
