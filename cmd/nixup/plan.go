package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atomikpanda/nixup/internal/settings"
)

func planCmd(s *settings.Settings) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "plan [planner]",
		Short: "Show the install plan without executing it",
		Example: `  nixup plan
  nixup plan linux-multi --out json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markConfiguredFlags(cmd, s)

			chosen, err := pickPlanner(args)
			if err != nil {
				return err
			}
			p, err := chosen.Plan(cmd.Context(), s)
			if err != nil {
				return err
			}

			switch out {
			case "text":
				fmt.Println(p.Describe(explain))
			case "json":
				data, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			case "yaml":
				// Round-trip through the receipt encoding so the YAML view
				// matches what the receipt will contain.
				data, err := json.Marshal(p)
				if err != nil {
					return err
				}
				var generic any
				if err := json.Unmarshal(data, &generic); err != nil {
					return err
				}
				rendered, err := yaml.Marshal(generic)
				if err != nil {
					return err
				}
				fmt.Print(string(rendered))
			default:
				return fmt.Errorf("unknown output format %q (want text, json, or yaml)", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "text", "output format: text, json, or yaml")
	addSettingsFlags(cmd, s)
	return cmd
}
