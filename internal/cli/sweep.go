package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/ports/secondary"
	"github.com/example/courier/internal/wire"
)

// SweepCmd returns the sweep command
func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the expiry sweeps now",
		Long: `Run the background expiry sweeps on demand. The scheduler runs them
automatically; manual runs are safe because sweeps are idempotent.`,
	}

	cmd.AddCommand(sweepRunCmd("quarantine", "Purge unprocessed quarantined messages past expiry",
		func(ctx context.Context) (*secondary.SweepRunRecord, error) {
			return wire.SweepService().PurgeExpiredQuarantine(ctx)
		}))
	cmd.AddCommand(sweepRunCmd("commitments", "Expire active commitments past their time plus grace",
		func(ctx context.Context) (*secondary.SweepRunRecord, error) {
			return wire.SweepService().ExpireStaleCommitments(ctx)
		}))

	return cmd
}

func sweepRunCmd(use, short string, run func(context.Context) (*secondary.SweepRunRecord, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := run(context.Background())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Printf("✓ Sweep %s %s: %d row(s) affected\n", rec.ID, rec.Status, rec.RowsAffected)
			return nil
		},
	}
}
