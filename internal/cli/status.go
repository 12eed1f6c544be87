package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/courier/internal/wire"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a pipeline overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pending, err := wire.ReviewService().ListPending(ctx, "")
			if err != nil {
				return fmt.Errorf("failed to list pending reviews: %w", err)
			}

			runs, err := wire.RecoveryService().ListRuns(ctx, 1)
			if err != nil {
				return fmt.Errorf("failed to list recovery runs: %w", err)
			}

			if n := len(pending); n > 0 {
				fmt.Printf("Review queue: %s\n", color.New(color.FgYellow).Sprintf("%d pending", n))
				byUser := map[string]int{}
				for _, it := range pending {
					byUser[it.UserID]++
				}
				for user, count := range byUser {
					fmt.Printf("  %s: %d\n", user, count)
				}
			} else {
				fmt.Println("Review queue: empty")
			}

			fmt.Println()
			if len(runs) == 0 {
				fmt.Println("Recovery: no runs yet")
			} else {
				r := runs[0]
				fmt.Printf("Recovery: last run %s (%s) at %s\n",
					r.Status, r.Trigger, r.StartedAt.Format("2006-01-02 15:04"))
				fmt.Printf("  recovered %d, skipped %d, errors %d\n",
					r.EventsRecovered, r.EventsSkipped, r.Errors)
			}

			return nil
		},
	}
}
