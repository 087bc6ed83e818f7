package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("place-channel-configuration", func() action.Action { return &PlaceChannelConfiguration{} })
}

// PlaceChannelConfiguration writes root's ~/.nix-channels so the daemon has
// the configured channels from the first run.
type PlaceChannelConfiguration struct {
	Channels []string   `json:"channels"`
	File     CreateFile `json:"file"`
}

// PlanPlaceChannelConfiguration renders the channels file entry list. Each
// channel is "name=url".
func PlanPlaceChannelConfiguration(channels []string) *action.Stateful {
	var b strings.Builder
	for _, c := range channels {
		name, url, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", url, name)
	}
	return action.Plan(&PlaceChannelConfiguration{
		Channels: channels,
		File: CreateFile{
			Path:     "/root/.nix-channels",
			Contents: []byte(b.String()),
			Mode:     0o644,
		},
	})
}

func (a *PlaceChannelConfiguration) Tag() string { return "place-channel-configuration" }

func (a *PlaceChannelConfiguration) Describe() string {
	return fmt.Sprintf("Place the channel configuration `%s`", a.File.Path)
}

func (a *PlaceChannelConfiguration) Explain() []string {
	return []string{"Configured channels: " + strings.Join(a.Channels, ", ")}
}

func (a *PlaceChannelConfiguration) Execute(ctx context.Context) error {
	return a.File.Execute(ctx)
}

func (a *PlaceChannelConfiguration) Revert(ctx context.Context) error {
	return a.File.Revert(ctx)
}
