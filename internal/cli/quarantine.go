package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/ctxutil"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/wire"
)

// QuarantineCmd returns the quarantine command
func QuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and release quarantined messages",
	}

	cmd.AddCommand(quarantineListCmd())
	cmd.AddCommand(quarantineReleaseCmd())

	return cmd
}

func quarantineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [user-id]",
		Short: "List a user's unprocessed quarantined messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := wire.ProtocolService().ListQuarantined(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list quarantined messages: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No quarantined messages.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMESSAGE\tRECEIVED\tEXPIRES\tPAYLOAD")
			for _, q := range items {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					q.ID, q.MessageID,
					q.ReceivedAt.Format("2006-01-02 15:04"),
					q.ExpiresAt.Format("2006-01-02 15:04"),
					truncate(q.Payload, 48))
			}
			return w.Flush()
		},
	}
}

func quarantineReleaseCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "release [quarantine-id]",
		Short: "Push one quarantined message through the pipeline",
		Long: `Release a quarantined message: it runs through generation and
coherence checking and lands in the review queue like any admitted
event. The quarantine row is marked processed and cannot be released
twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			res, err := wire.ProtocolService().Release(ctx, args[0], who)
			if err != nil {
				return fmt.Errorf("failed to release message: %w", err)
			}

			switch res.Disposition {
			case primary.DispositionAdmitted:
				fmt.Printf("✓ Released; review item %s is pending\n", res.ReviewItemID)
			case primary.DispositionDuplicate:
				fmt.Println("✓ Released; the event was already processed")
			default:
				fmt.Printf("✓ Released (%s)\n", res.Disposition)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting identity for the audit trail")

	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
