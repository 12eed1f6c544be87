package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/ports/primary"
	"github.com/example/courier/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var skipRecovery bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the courier pipeline",
		Long: `Run the full courier pipeline: startup recovery, the Telegram
long-poll loop, and the background scheduler (periodic recovery,
expiry sweeps, approved-item delivery).

Every inbound message is durably stored before any processing, gated
through the quarantine protocol, generated, checked for coherence and
parked for human review. Nothing is sent without an approval.

Examples:
  courier serve
  courier serve --skip-recovery`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := wire.Logger()
			defer func() { _ = log.Sync() }()

			if !skipRecovery {
				run, err := wire.RecoveryService().Run(ctx, primary.TriggerStartup)
				if err != nil {
					return fmt.Errorf("startup recovery failed: %w", err)
				}
				log.Info("startup recovery finished",
					zap.Int("users_checked", run.UsersChecked),
					zap.Int("events_recovered", run.EventsRecovered),
					zap.Int("errors", run.Errors))
			}

			sched := wire.Scheduler()
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			inbox := wire.InboxService()
			err := wire.Transport().Run(ctx, func(ctx context.Context, e event.Inbound) error {
				_, err := inbox.Ingest(ctx, e)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("transport loop failed: %w", err)
			}

			log.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipRecovery, "skip-recovery", false, "skip the startup recovery pass")

	return cmd
}
