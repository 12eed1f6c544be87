package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/courier/internal/core/protocol"
	"github.com/example/courier/internal/ctxutil"
	"github.com/example/courier/internal/wire"
)

// actorOrUser resolves the acting identity for audited commands:
// the --actor flag if set, otherwise the OS username.
func actorOrUser(actor string) string {
	if actor != "" {
		return actor
	}
	return os.Getenv("USER")
}

// ProtocolCmd returns the protocol command
func ProtocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Manage the per-user quarantine gate",
		Long: `Manage the quarantine protocol. While a user's protocol is ACTIVE,
their inbound messages are diverted before any generation runs; they
sit in quarantine until released, or expire after seven days.`,
	}

	cmd.AddCommand(protocolActivateCmd())
	cmd.AddCommand(protocolDeactivateCmd())
	cmd.AddCommand(protocolPassCmd())
	cmd.AddCommand(protocolStatusCmd())
	cmd.AddCommand(protocolAuditCmd())

	return cmd
}

func protocolActivateCmd() *cobra.Command {
	var actor, reason string

	cmd := &cobra.Command{
		Use:   "activate [user-id]",
		Short: "Turn quarantine on for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			if err := wire.ProtocolService().Activate(ctx, userID, who, reason); err != nil {
				return fmt.Errorf("failed to activate protocol: %w", err)
			}

			fmt.Printf("✓ Protocol ACTIVE for user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting identity for the audit trail")
	cmd.Flags().StringVar(&reason, "reason", "", "why quarantine was activated")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func protocolDeactivateCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "deactivate [user-id]",
		Short: "Turn quarantine off for a user",
		Long: `Turn quarantine off. Messages quarantined while the protocol was
active stay in quarantine; release them individually if wanted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			if err := wire.ProtocolService().Deactivate(ctx, userID, who); err != nil {
				return fmt.Errorf("failed to deactivate protocol: %w", err)
			}

			fmt.Printf("✓ Protocol INACTIVE for user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting identity for the audit trail")

	return cmd
}

func protocolPassCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "pass [user-id]",
		Short: "Let the user's next message bypass quarantine once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			if err := wire.ProtocolService().OneTimePass(ctx, userID, who); err != nil {
				return fmt.Errorf("failed to grant one-time pass: %w", err)
			}

			fmt.Printf("✓ One-time pass granted for user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting identity for the audit trail")

	return cmd
}

func protocolStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [user-id]",
		Short: "Show a user's protocol state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := wire.ProtocolService().Status(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get protocol status: %w", err)
			}

			fmt.Printf("User:    %s\n", rec.UserID)
			fmt.Printf("Status:  %s\n", colorStatus(rec.Status))
			if rec.Status == protocol.StatusActive {
				fmt.Printf("By:      %s\n", rec.ActivatedBy)
				if rec.ActivatedAt != nil {
					fmt.Printf("Since:   %s\n", rec.ActivatedAt.Format("2006-01-02 15:04"))
				}
				if rec.Reason != "" {
					fmt.Printf("Reason:  %s\n", rec.Reason)
				}
			}
			if rec.PendingPass {
				fmt.Println("Pass:    one-time pass pending")
			}
			fmt.Printf("Diverted: %d messages (est. $%.2f saved)\n", rec.QuarantinedCount, rec.CostSaved)
			return nil
		},
	}
}

func protocolAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [user-id]",
		Short: "Show a user's protocol transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := wire.ProtocolService().AuditTrail(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get audit trail: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No protocol transitions recorded.")
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s  %-14s %s → %s  by %s\n",
					e.CreatedAt.Format("2006-01-02 15:04"),
					e.Action, e.PreviousStatus, e.NewStatus, e.Actor)
			}
			return nil
		},
	}
}

func colorStatus(s protocol.Status) string {
	if s == protocol.StatusActive {
		return color.New(color.FgRed).Sprint(string(s))
	}
	return color.New(color.FgHiGreen).Sprint(string(s))
}
