package planner

import (
	"context"
	"os"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/actions"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/platform"
	"github.com/atomikpanda/nixup/internal/settings"
)

func init() {
	register(&linuxMulti{})
}

// scratchDir is where the release tarball unpacks before the store moves
// into place.
const scratchDir = "/nix/.nixup-scratch"

// linuxMulti is the multi-user Linux installation: build users, the store
// under /nix, and a systemd-socket-activated nix-daemon.
type linuxMulti struct{}

func (p *linuxMulti) Name() string { return "linux-multi" }

func (p *linuxMulti) Plan(ctx context.Context, s *settings.Settings) (*plan.Plan, error) {
	if platform.IsNixOS() {
		return nil, &UnsupportedError{Reason: "NixOS already has Nix installed; nixup has nothing to do here"}
	}
	if _, err := os.Stat("/run/systemd/system"); err != nil {
		return nil, &UnsupportedError{Reason: "linux-multi requires systemd to manage the nix-daemon; no systemd was detected"}
	}

	out := newPlan(p.Name(), s)

	out.Actions = append(out.Actions,
		action.Plan(&actions.CreateDirectory{Path: "/nix", Mode: 0o755, ForceRemoveOnRevert: true}),
		action.Plan(&action.Group{
			Name:        "Provision Nix",
			Independent: true,
			MaxParallel: s.Parallelism,
			Children: []*action.Stateful{
				action.Plan(&actions.FetchNix{URL: s.NixPackageURL, Dest: scratchDir}),
				actions.PlanCreateUsersAndGroups(
					s.NixBuildGroupName, s.NixBuildGroupID,
					s.NixBuildUserPrefix, s.NixBuildUserCount, s.NixBuildUserIDBase,
					s.Parallelism,
				),
			},
		}),
		action.Plan(&actions.MoveUnpackedNix{Scratch: scratchDir, StoreDir: "/nix/store", ProfilePath: "/nix/var/nix/profiles/default"}),
		action.Plan(&actions.MergeNixConfig{
			Path: "/etc/nix/nix.conf",
			Settings: map[string]string{
				"build-users-group": s.NixBuildGroupName,
			},
			ExtraConf: s.ExtraConf,
		}),
	)

	if len(s.Channels) > 0 {
		out.Actions = append(out.Actions, actions.PlanPlaceChannelConfiguration(s.Channels))
	}
	if s.ModifyProfile {
		profile, err := actions.PlanConfigureShellProfile(s.Parallelism)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, profile)
	}

	daemon, err := actions.PlanConfigureDaemonService("systemd")
	if err != nil {
		return nil, err
	}
	out.Actions = append(out.Actions, daemon)

	return out, nil
}
