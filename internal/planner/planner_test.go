package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/actions"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/settings"
)

func TestBuiltinLookup(t *testing.T) {
	for _, name := range []string{"linux-multi", "darwin-multi"} {
		p, err := Builtin(name)
		if err != nil {
			t.Fatal(err)
		}
		if p.Name() != name {
			t.Errorf("Name() = %q, want %q", p.Name(), name)
		}
	}
	if _, err := Builtin("windows-multi"); err == nil {
		t.Error("want error for unknown planner")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) < 2 {
		t.Fatalf("names = %v", names)
	}
}

// darwinMulti performs no host gating, so its plan is constructible
// anywhere and exercises the full catalogue.
func TestDarwinMultiPlanShape(t *testing.T) {
	s := settings.Default("aarch64-apple-darwin")
	s.NixBuildUserCount = 3

	p, err := (&darwinMulti{}).Plan(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}

	if p.Planner != "darwin-multi" {
		t.Errorf("planner tag = %q", p.Planner)
	}
	if p.Version != plan.InstallerVersion {
		t.Errorf("version = %q", p.Version)
	}
	if p.Triple == "" || p.OSName == "" {
		t.Error("plan must capture the target triple and OS")
	}

	// First action provisions /nix, last starts the daemon.
	if _, ok := p.Actions[0].Action.(*actions.CreateDirectory); !ok {
		t.Errorf("first action = %T, want CreateDirectory", p.Actions[0].Action)
	}
	last := p.Actions[len(p.Actions)-1].Action
	daemon, ok := last.(*actions.ConfigureDaemonService)
	if !ok {
		t.Fatalf("last action = %T, want ConfigureDaemonService", last)
	}
	if daemon.InitSystem != "launchd" {
		t.Errorf("init system = %q, want launchd", daemon.InitSystem)
	}

	// Every action starts Pending.
	var walk func(sts []*action.Stateful)
	walk = func(sts []*action.Stateful) {
		for _, st := range sts {
			if st.State != action.Pending {
				t.Errorf("action %s state = %s, want Pending", st.Action.Tag(), st.State)
			}
			switch a := st.Action.(type) {
			case *action.Group:
				walk(a.Children)
			case *actions.CreateUsersAndGroups:
				walk(a.Children)
			}
		}
	}
	walk(p.Actions)
}

func TestPlanSettingsFlowIntoActions(t *testing.T) {
	s := settings.Default("t")
	s.NixBuildUserCount = 2
	s.NixBuildGroupName = "mybld"

	p, err := (&darwinMulti{}).Plan(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}

	var found *actions.CreateUsersAndGroups
	for _, st := range p.Actions {
		if g, ok := st.Action.(*action.Group); ok {
			for _, c := range g.Children {
				if u, ok := c.Action.(*actions.CreateUsersAndGroups); ok {
					found = u
				}
			}
		}
	}
	if found == nil {
		t.Fatal("plan has no CreateUsersAndGroups")
	}
	if found.GroupName != "mybld" || found.UserCount != 2 {
		t.Errorf("composite = %s/%d, want mybld/2", found.GroupName, found.UserCount)
	}
}

// The full planner output must survive the receipt round-trip with every
// nested child reconstructed, since uninstall depends on nothing else.
func TestPlanReceiptRoundTrip(t *testing.T) {
	s := settings.Default("t")
	s.NixBuildUserCount = 2

	p, err := (&darwinMulti{}).Plan(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	var got plan.Plan
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Actions) != len(p.Actions) {
		t.Fatalf("round-trip actions = %d, want %d", len(got.Actions), len(p.Actions))
	}
	for i := range got.Actions {
		if got.Actions[i].Action.Tag() != p.Actions[i].Action.Tag() {
			t.Errorf("action %d tag = %q, want %q", i, got.Actions[i].Action.Tag(), p.Actions[i].Action.Tag())
		}
		if got.Actions[i].Action.Describe() != p.Actions[i].Action.Describe() {
			t.Errorf("action %d describe mismatch after round-trip", i)
		}
	}
}
