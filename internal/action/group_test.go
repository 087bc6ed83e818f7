package action

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// barrierStep blocks until every sibling has started, proving overlap.
type barrierStep struct {
	Name string `json:"name"`

	wg       *sync.WaitGroup
	started  chan string
	reverted chan string
}

func (s *barrierStep) Tag() string       { return "barrier-step" }
func (s *barrierStep) Describe() string  { return "Barrier step " + s.Name }
func (s *barrierStep) Explain() []string { return nil }

func (s *barrierStep) Execute(ctx context.Context) error {
	s.started <- s.Name
	s.wg.Done()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("siblings never started; children did not run concurrently")
	}
}

func (s *barrierStep) Revert(ctx context.Context) error {
	if s.reverted != nil {
		s.reverted <- s.Name
	}
	return nil
}

func TestIndependentChildrenOverlap(t *testing.T) {
	const n = 3
	var wg sync.WaitGroup
	wg.Add(n)
	started := make(chan string, n)

	children := make([]*Stateful, 0, n)
	for _, name := range []string{"a", "b", "c"} {
		children = append(children, Plan(&barrierStep{Name: name, wg: &wg, started: started}))
	}
	g := &Group{Name: "overlap", Independent: true, MaxParallel: n, Children: children}

	if err := g.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, c := range children {
		if c.State != Completed {
			t.Errorf("child %s state = %s, want Completed", c.Action.Describe(), c.State)
		}
	}
}

type orderStep struct {
	Name string `json:"name"`

	log  *[]string
	mu   *sync.Mutex
	fail bool
}

func (s *orderStep) Tag() string       { return "order-step" }
func (s *orderStep) Describe() string  { return "Order step " + s.Name }
func (s *orderStep) Explain() []string { return nil }

func (s *orderStep) Execute(ctx context.Context) error {
	s.mu.Lock()
	*s.log = append(*s.log, "exec "+s.Name)
	s.mu.Unlock()
	if s.fail {
		return errors.New(s.Name + " failed")
	}
	return nil
}

func (s *orderStep) Revert(ctx context.Context) error {
	s.mu.Lock()
	*s.log = append(*s.log, "revert "+s.Name)
	s.mu.Unlock()
	return nil
}

func TestSequentialFailureRevertsCompletedChildren(t *testing.T) {
	var log []string
	var mu sync.Mutex
	mk := func(name string, fail bool) *Stateful {
		return Plan(&orderStep{Name: name, log: &log, mu: &mu, fail: fail})
	}
	g := &Group{Name: "seq", Children: []*Stateful{mk("a", false), mk("b", false), mk("c", true)}}

	err := g.Execute(context.Background())
	if err == nil {
		t.Fatal("want error from failing child")
	}
	want := []string{"exec a", "exec b", "exec c", "revert b", "revert a"}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Errorf("log = %v, want %v", log, want)
	}
	// The failing child never completed, so it must not have been reverted
	// and the group itself reports the execute error.
	if g.Children[2].State != Pending {
		t.Errorf("failed child state = %s, want Pending", g.Children[2].State)
	}
}

func TestSequentialChecksContextBetweenChildren(t *testing.T) {
	var log []string
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &Group{Name: "cancelled", Children: []*Stateful{
		Plan(&orderStep{Name: "a", log: &log, mu: &mu}),
	}}
	err := g.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(log) != 0 {
		t.Errorf("log = %v, want no executions after cancellation", log)
	}
}

func TestIndependentFailureCancelsAndAwaitsSiblings(t *testing.T) {
	// One child fails as soon as its sibling is running; the sibling blocks
	// until its context is cancelled. ExecuteIndependent must await the
	// blocked sibling rather than abandoning it.
	blockerStarted := make(chan struct{})
	blockerDone := make(chan struct{})
	blocker := Plan(&funcStep{
		name: "blocker",
		execute: func(ctx context.Context) error {
			defer close(blockerDone)
			close(blockerStarted)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	failer := Plan(&funcStep{
		name: "failer",
		execute: func(ctx context.Context) error {
			<-blockerStarted
			return errors.New("boom")
		},
	})

	err := ExecuteIndependent(context.Background(), 2, []*Stateful{blocker, failer})
	if err == nil {
		t.Fatal("want error")
	}
	select {
	case <-blockerDone:
	default:
		t.Error("ExecuteIndependent returned before the blocked sibling finished")
	}
	if blocker.State == Completed {
		t.Error("cancelled child must not be Completed")
	}
}

func TestRevertReverseAggregates(t *testing.T) {
	mk := func(name string, failRevert bool) *Stateful {
		return &Stateful{Action: &testStep{Name: name, FailRevert: failRevert}, State: Completed}
	}
	children := []*Stateful{mk("a", true), mk("b", false), mk("c", true)}

	err := RevertReverse(context.Background(), children)
	if err == nil {
		t.Fatal("want aggregated error")
	}
	// Both failures must be present; the middle child must still be reverted.
	if !strings.Contains(err.Error(), "Test step a") || !strings.Contains(err.Error(), "Test step c") {
		t.Errorf("aggregated error missing failures: %v", err)
	}
	if children[1].State != Reverted {
		t.Errorf("child b state = %s, want Reverted (best-effort continues)", children[1].State)
	}
}

// funcStep adapts closures to the Action interface for one-off tests.
type funcStep struct {
	name    string
	execute func(ctx context.Context) error
	revert  func(ctx context.Context) error
}

func (s *funcStep) Tag() string       { return "func-step" }
func (s *funcStep) Describe() string  { return "Func step " + s.name }
func (s *funcStep) Explain() []string { return nil }

func (s *funcStep) Execute(ctx context.Context) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx)
}

func (s *funcStep) Revert(ctx context.Context) error {
	if s.revert == nil {
		return nil
	}
	return s.revert(ctx)
}
