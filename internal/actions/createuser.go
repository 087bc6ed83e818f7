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
	action.Register("create-user", func() action.Action { return &CreateUser{} })
}

// CreateUser creates a system user in an existing group. Build users have no
// home, no shell, and no password; they exist only for the daemon to act as.
type CreateUser struct {
	Name      string `json:"name"`
	UID       uint32 `json:"uid"`
	GroupName string `json:"group_name"`
	GID       uint32 `json:"gid"`
}

func (a *CreateUser) Tag() string { return "create-user" }

func (a *CreateUser) Describe() string {
	return fmt.Sprintf("Create user `%s` (UID %d) in group `%s` (GID %d)", a.Name, a.UID, a.GroupName, a.GID)
}

func (a *CreateUser) Explain() []string {
	return []string{"The Nix daemon requires system users it can act as in order to build"}
}

func (a *CreateUser) Execute(ctx context.Context) error {
	existing, err := user.Lookup(a.Name)
	if err == nil {
		if existing.Uid != strconv.FormatUint(uint64(a.UID), 10) {
			return fmt.Errorf("user `%s` exists with UID %s, wanted %d", a.Name, existing.Uid, a.UID)
		}
		if existing.Gid != strconv.FormatUint(uint64(a.GID), 10) {
			return fmt.Errorf("user `%s` exists with GID %s, wanted %d", a.Name, existing.Gid, a.GID)
		}
		return nil
	}

	uid := strconv.FormatUint(uint64(a.UID), 10)
	gid := strconv.FormatUint(uint64(a.GID), 10)
	switch platform.Current() {
	case "darwin":
		userPath := "/Users/" + a.Name
		steps := [][]string{
			{".", "-create", userPath},
			{".", "-create", userPath, "UniqueID", uid},
			{".", "-create", userPath, "PrimaryGroupID", gid},
			{".", "-create", userPath, "NFSHomeDirectory", "/var/empty"},
			{".", "-create", userPath, "UserShell", "/sbin/nologin"},
			{".", "-create", userPath, "IsHidden", "1"},
		}
		for _, args := range steps {
			if _, err := command.Run(ctx, "/usr/bin/dscl", args...); err != nil {
				return err
			}
		}
		if _, err := command.Run(ctx, "/usr/sbin/dseditgroup", "-o", "edit", "-a", a.Name, "-t", "user", a.GroupName); err != nil {
			return err
		}
	default:
		if _, err := command.Run(ctx, "useradd",
			"--home-dir", "/var/empty",
			"--comment", "Nix build user",
			"--gid", gid,
			"--groups", gid,
			"--no-user-group",
			"--system",
			"--shell", "/sbin/nologin",
			"--uid", uid,
			"--password", "!",
			a.Name,
		); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateUser) Revert(ctx context.Context) error {
	if _, err := user.Lookup(a.Name); err != nil {
		return nil // already absent
	}
	switch platform.Current() {
	case "darwin":
		_, err := command.Run(ctx, "/usr/bin/dscl", ".", "-delete", "/Users/"+a.Name)
		return err
	default:
		_, err := command.Run(ctx, "userdel", a.Name)
		return err
	}
}
