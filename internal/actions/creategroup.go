// Package actions is the concrete action catalogue: every host mutation the
// builtin planners can emit, each implementing the action contract (pure
// describe, probing idempotent execute, tolerant revert, receipt-stable
// serialization).
package actions

import (
	"context"
	"fmt"
	"os/user"
	"strconv"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/command"
	"github.com/atomikpanda/nixup/internal/platform"
)

func init() {
	action.Register("create-group", func() action.Action { return &CreateGroup{} })
}

// CreateGroup creates an operating system group.
type CreateGroup struct {
	Name string `json:"name"`
	GID  uint32 `json:"gid"`
}

func (a *CreateGroup) Tag() string { return "create-group" }

func (a *CreateGroup) Describe() string {
	return fmt.Sprintf("Create group `%s` (GID %d)", a.Name, a.GID)
}

func (a *CreateGroup) Explain() []string {
	return []string{"The Nix daemon requires a build group for its unprivileged build users"}
}

func (a *CreateGroup) Execute(ctx context.Context) error {
	existing, err := user.LookupGroup(a.Name)
	if err == nil {
		if existing.Gid != strconv.FormatUint(uint64(a.GID), 10) {
			return fmt.Errorf("group `%s` exists with GID %s, wanted %d; pick a different group or remove the existing one", a.Name, existing.Gid, a.GID)
		}
		return nil
	}

	gid := strconv.FormatUint(uint64(a.GID), 10)
	switch platform.Current() {
	case "darwin":
		if _, err := command.Run(ctx, "/usr/sbin/dseditgroup", "-o", "create", "-r", "Nix build group for nix-daemon", "-i", gid, a.Name); err != nil {
			return err
		}
	default:
		if _, err := command.Run(ctx, "groupadd", "--system", "--gid", gid, a.Name); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateGroup) Revert(ctx context.Context) error {
	if _, err := user.LookupGroup(a.Name); err != nil {
		return nil // already absent
	}
	switch platform.Current() {
	case "darwin":
		_, err := command.Run(ctx, "/usr/sbin/dseditgroup", "-o", "delete", a.Name)
		return err
	default:
		_, err := command.Run(ctx, "groupdel", a.Name)
		return err
	}
}
