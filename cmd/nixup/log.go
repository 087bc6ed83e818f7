package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomikpanda/nixup/internal/color"
	"github.com/atomikpanda/nixup/internal/eventlog"
	"github.com/atomikpanda/nixup/internal/executor"
)

func logCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the journal of installer lifecycle events",
		Example: `  nixup log
  nixup log --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := eventlog.Read(limit)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("(no journal entries)")
				return nil
			}

			fmt.Println(color.Bold(fmt.Sprintf("%-20s  %-18s  %-28s  %s", "TIME", "EVENT", "ACTION", "DETAIL")))
			for _, e := range events {
				detail := e.Description
				if e.Err != "" {
					detail = e.Err
				}
				kind := string(e.Kind)
				switch e.Kind {
				case executor.ActionFailed, executor.RevertFailed, executor.PlanAborted:
					kind = color.BoldRed(fmt.Sprintf("%-18s", kind))
				case executor.PlanComplete, executor.RevertComplete:
					kind = color.Green(fmt.Sprintf("%-18s", kind))
				default:
					kind = fmt.Sprintf("%-18s", kind)
				}
				fmt.Printf("%-20s  %s  %-28s  %s\n",
					e.Time.Local().Format(time.DateTime), kind, e.Tag, detail)
			}
			fmt.Printf("\njournal: %s\n", eventlog.Path())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries to show")
	return cmd
}
