package actions

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("configure-shell-profile", func() action.Action { return &ConfigureShellProfile{} })
}

const shProfileStanza = `# Nix
if [ -e '/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh' ]; then
  . '/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.sh'
fi
# End Nix
`

const fishProfileStanza = `# Nix
if test -e '/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.fish'
  . '/nix/var/nix/profiles/default/etc/profile.d/nix-daemon.fish'
end
# End Nix
`

// ConfigureShellProfile drops the Nix daemon stanza into the system-wide
// shell startup locations. The target files are disjoint, so the children
// are independent.
type ConfigureShellProfile struct {
	Children []*action.Stateful `json:"children"`
}

// PlanConfigureShellProfile always plans a create-file child for
// /etc/profile.d/nix.sh, and one for /etc/fish/conf.d/nix.fish when
// /etc/fish exists.
func PlanConfigureShellProfile(parallelism int) (*action.Stateful, error) {
	var files []*action.Stateful
	files = append(files, action.Plan(&CreateFile{
		Path:     "/etc/profile.d/nix.sh",
		Contents: []byte(shProfileStanza),
		Mode:     0o644,
	}))
	if _, err := os.Stat("/etc/fish"); err == nil {
		files = append(files, action.Plan(&CreateFile{
			Path:     "/etc/fish/conf.d/nix.fish",
			Contents: []byte(fishProfileStanza),
			Mode:     0o644,
		}))
	}
	return action.Plan(&ConfigureShellProfile{
		Children: []*action.Stateful{
			action.Plan(&action.Group{
				Name:        "Write shell profile stanzas",
				Independent: true,
				MaxParallel: parallelism,
				Children:    files,
			}),
		},
	}), nil
}

func (a *ConfigureShellProfile) Tag() string { return "configure-shell-profile" }

func (a *ConfigureShellProfile) Describe() string {
	return fmt.Sprintf("Configure the shell profile (%d location(s))", a.locationCount())
}

func (a *ConfigureShellProfile) Explain() []string {
	var paths []string
	for _, c := range a.Children {
		if g, ok := c.Action.(*action.Group); ok {
			for _, f := range g.Children {
				if cf, ok := f.Action.(*CreateFile); ok {
					paths = append(paths, cf.Path)
				}
			}
		}
	}
	return []string{"New shells will source the Nix daemon environment from: " + strings.Join(paths, ", ")}
}

func (a *ConfigureShellProfile) Execute(ctx context.Context) error {
	if err := action.ExecuteSequential(ctx, a.Children); err != nil {
		if revErr := action.RevertReverse(ctx, a.Children); revErr != nil {
			return fmt.Errorf("%w (additionally, reverting completed children failed: %v)", err, revErr)
		}
		return err
	}
	return nil
}

func (a *ConfigureShellProfile) Revert(ctx context.Context) error {
	return action.RevertReverse(ctx, a.Children)
}

func (a *ConfigureShellProfile) locationCount() int {
	n := 0
	for _, c := range a.Children {
		if g, ok := c.Action.(*action.Group); ok {
			n += len(g.Children)
		}
	}
	return n
}
