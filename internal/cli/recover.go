package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/ports/secondary"
	"github.com/example/courier/internal/wire"
)

// RecoverCmd returns the recover command
func RecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Replay events missed while the service was down",
		Long: `Run a recovery pass: for every known user, replay the events
between the per-user cursor and the latest durably stored event.

Replays are idempotent; an event that already produced a review item
or a quarantine diversion is counted as skipped, not reprocessed.

Examples:
  courier recover
  courier recover --user 12345678
  courier recover runs`,
	}

	cmd.AddCommand(recoverRunsCmd())

	var userID string
	cmd.Flags().StringVar(&userID, "user", "", "recover a single user only")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var run *secondary.RecoveryRunRecord
		var err error
		if userID != "" {
			run, err = wire.RecoveryService().RunForUser(ctx, primary.TriggerManual, userID)
		} else {
			run, err = wire.RecoveryService().Run(ctx, primary.TriggerManual)
		}
		if err != nil {
			return fmt.Errorf("recovery failed: %w", err)
		}

		fmt.Printf("✓ Recovery run %s %s\n", run.ID, run.Status)
		fmt.Printf("  users checked:    %d\n", run.UsersChecked)
		fmt.Printf("  events recovered: %d\n", run.EventsRecovered)
		fmt.Printf("  events skipped:   %d\n", run.EventsSkipped)
		if run.Errors > 0 {
			fmt.Printf("  errors:           %d (%s)\n", run.Errors, run.ErrorDetails)
		}
		return nil
	}

	return cmd
}

func recoverRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent recovery runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := wire.RecoveryService().ListRuns(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("failed to list recovery runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No recovery runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRIGGER\tSTATUS\tUSERS\tRECOVERED\tSKIPPED\tERRORS\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.ID, r.Trigger, r.Status,
					r.UsersChecked, r.EventsRecovered, r.EventsSkipped, r.Errors,
					r.StartedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")

	return cmd
}
