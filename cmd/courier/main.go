package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/cli"
	"github.com/example/courier/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "courier",
		Short:   "courier - human-gated conversational delivery",
		Version: version.String(),
		Long: `courier runs a durable, human-gated reply pipeline over a chat
transport. Inbound messages are stored before anything else happens,
optionally quarantined per user, pushed through a staged generation
pipeline, checked against the user's commitment ledger, and parked
for human review. Only approved or edited replies are ever sent.`,
	}

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.RecoverCmd())
	rootCmd.AddCommand(cli.ProtocolCmd())
	rootCmd.AddCommand(cli.QuarantineCmd())
	rootCmd.AddCommand(cli.ReviewCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.SweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
