package actions

import (
	"context"
	"fmt"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("create-users-and-groups", func() action.Action { return &CreateUsersAndGroups{} })
}

// CreateUsersAndGroups provisions the build group and its build users. The
// group must exist before any user is created; the users themselves target
// disjoint entries and are created concurrently.
type CreateUsersAndGroups struct {
	GroupName  string `json:"group_name"`
	GroupID    uint32 `json:"group_id"`
	UserPrefix string `json:"user_prefix"`
	UserCount  int    `json:"user_count"`
	UserIDBase uint32 `json:"user_id_base"`

	Children []*action.Stateful `json:"children"`
}

// PlanCreateUsersAndGroups builds the composite: one create-group child
// followed by an independent group of create-user children.
func PlanCreateUsersAndGroups(groupName string, groupID uint32, userPrefix string, userCount int, userIDBase uint32, parallelism int) *action.Stateful {
	users := make([]*action.Stateful, 0, userCount)
	for i := 1; i <= userCount; i++ {
		users = append(users, action.Plan(&CreateUser{
			Name:      fmt.Sprintf("%s%d", userPrefix, i),
			UID:       userIDBase + uint32(i),
			GroupName: groupName,
			GID:       groupID,
		}))
	}
	return action.Plan(&CreateUsersAndGroups{
		GroupName:  groupName,
		GroupID:    groupID,
		UserPrefix: userPrefix,
		UserCount:  userCount,
		UserIDBase: userIDBase,
		Children: []*action.Stateful{
			action.Plan(&CreateGroup{Name: groupName, GID: groupID}),
			action.Plan(&action.Group{
				Name:        fmt.Sprintf("Create %d build users", userCount),
				Independent: true,
				MaxParallel: parallelism,
				Children:    users,
			}),
		},
	})
}

func (a *CreateUsersAndGroups) Tag() string { return "create-users-and-groups" }

func (a *CreateUsersAndGroups) Describe() string {
	return fmt.Sprintf("Create build group `%s` (GID %d) and %d build users (`%s1`…`%s%d`)",
		a.GroupName, a.GroupID, a.UserCount, a.UserPrefix, a.UserPrefix, a.UserCount)
}

func (a *CreateUsersAndGroups) Explain() []string {
	return []string{
		"The Nix daemon performs builds as dedicated unprivileged users",
		fmt.Sprintf("Users get UIDs %d through %d", a.UserIDBase+1, a.UserIDBase+uint32(a.UserCount)),
	}
}

func (a *CreateUsersAndGroups) Execute(ctx context.Context) error {
	if err := action.ExecuteSequential(ctx, a.Children); err != nil {
		if revErr := action.RevertReverse(ctx, a.Children); revErr != nil {
			return fmt.Errorf("%w (additionally, reverting completed children failed: %v)", err, revErr)
		}
		return err
	}
	return nil
}

func (a *CreateUsersAndGroups) Revert(ctx context.Context) error {
	return action.RevertReverse(ctx, a.Children)
}
