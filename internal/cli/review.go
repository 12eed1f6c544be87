package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/courier/internal/core/coherence"
	"github.com/example/courier/internal/core/review"
	"github.com/example/courier/internal/ctxutil"
	"github.com/example/courier/internal/wire"
)

// ReviewCmd returns the review command
func ReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the human review queue",
		Long: `Work the review queue. Every generated reply parks here; nothing is
delivered until a reviewer approves it, edits it, or rejects it.`,
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewShowCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewEditCmd())
	cmd.AddCommand(reviewDeliverCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := wire.ReviewService().ListPending(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to list review items: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("Review queue is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tMESSAGE\tVERDICT\tCREATED\tCANDIDATE")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					it.ID, it.UserID, it.MessageID,
					verdictMarker(it.VerdictStatus),
					it.CreatedAt.Format("2006-01-02 15:04"),
					truncate(it.CandidateOutput, 48))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")

	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [item-id]",
		Short: "Show one review item in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := wire.ReviewService().Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get review item: %w", err)
			}

			fmt.Printf("ID:       %s\n", it.ID)
			fmt.Printf("User:     %s (message %d)\n", it.UserID, it.MessageID)
			fmt.Printf("Verdict:  %s\n", verdictMarker(it.VerdictStatus))
			fmt.Printf("State:    %s\n", it.ApprovalState)
			if it.Reviewer != "" {
				fmt.Printf("Reviewer: %s\n", it.Reviewer)
			}
			fmt.Println()
			fmt.Println("Candidate output:")
			fmt.Println(indent(it.CandidateOutput))
			if it.EditedOutput != "" {
				fmt.Println()
				fmt.Println("Edited output:")
				fmt.Println(indent(it.EditedOutput))
				fmt.Printf("Tags: %s\n", joinTags(it.EditTags))
			}
			if it.DeliveredAt != nil {
				fmt.Printf("\nDelivered: %s\n", it.DeliveredAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "approve [item-id]",
		Short: "Approve an item for delivery as-is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			if err := wire.ReviewService().Approve(ctx, args[0], who); err != nil {
				return fmt.Errorf("failed to approve: %w", err)
			}

			fmt.Printf("✓ Approved %s; it will go out on the next delivery pass\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity")

	return cmd
}

func reviewRejectCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "reject [item-id]",
		Short: "Reject an item; nothing is delivered",
		Long: `Reject an item. Rejection is terminal: the reply is never delivered
and the inbound event is never resubmitted through the pipeline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			if err := wire.ReviewService().Reject(ctx, args[0], who); err != nil {
				return fmt.Errorf("failed to reject: %w", err)
			}

			fmt.Printf("✓ Rejected %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity")

	return cmd
}

func reviewEditCmd() *cobra.Command {
	var actor string
	var tags []string

	cmd := &cobra.Command{
		Use:   "edit [item-id] [replacement-text]",
		Short: "Replace the output and mark it deliverable",
		Long: `Replace the candidate output with the reviewer's text. Tags classify
what the edit changed and come from a closed vocabulary:
tone, content, cta, length, factual, scheduling.

Examples:
  courier review edit REV-1 "See you at 2pm instead." --tag scheduling
  courier review edit REV-2 "Shorter version." --tag length --tag tone`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who := actorOrUser(actor)
			ctx := ctxutil.WithActorID(context.Background(), who)

			codes := make([]review.TagCode, len(tags))
			for i, t := range tags {
				codes[i] = review.TagCode(strings.ToLower(t))
			}

			if err := wire.ReviewService().Edit(ctx, args[0], who, args[1], codes); err != nil {
				return fmt.Errorf("failed to edit: %w", err)
			}

			fmt.Printf("✓ Edited %s; the replacement will go out on the next delivery pass\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "reviewer identity")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "edit tag (repeatable)")

	return cmd
}

func reviewDeliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver",
		Short: "Send all undelivered approved items now",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := wire.ReviewService().DeliverApproved(context.Background())
			if err != nil {
				return fmt.Errorf("delivery pass failed: %w", err)
			}

			fmt.Printf("✓ Delivered %d item(s)\n", n)
			return nil
		},
	}
}

func verdictMarker(status coherence.VerdictStatus) string {
	if status == coherence.VerdictOK {
		return color.New(color.FgHiGreen).Sprint(string(status))
	}
	return color.New(color.FgYellow).Sprint(string(status))
}

func joinTags(tags []review.TagCode) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
