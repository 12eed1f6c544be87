package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/config"
	"github.com/example/courier/internal/db"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the courier environment",
		Long: `Environment health check for courier.

Validates:
- Directory structure (~/.courier/)
- Database reachability and schema
- Config file presence and secrets

Examples:
  courier doctor          # Run full health check
  courier doctor --quiet  # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := []CheckResult{
				checkHomeDir(),
				checkDatabase(),
				checkConfig(),
			}

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
				}
				if quiet {
					continue
				}
				if r.Status == "✓" {
					fmt.Printf("%s %s\n", r.Status, r.Name)
				} else {
					fmt.Printf("%s %s: %s\n", r.Status, r.Name, r.Details)
				}
			}

			if hasErrors {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "exit code only, no output")

	return cmd
}

func checkHomeDir() CheckResult {
	home, err := os.UserHomeDir()
	if err != nil {
		return CheckResult{"~/.courier directory", "✗", err.Error()}
	}
	dir := filepath.Join(home, ".courier")
	if _, err := os.Stat(dir); err != nil {
		return CheckResult{"~/.courier directory", "✗", "missing, run: courier init"}
	}
	return CheckResult{"~/.courier directory", "✓", ""}
}

func checkDatabase() CheckResult {
	database, err := db.GetDB()
	if err != nil {
		return CheckResult{"database", "✗", err.Error()}
	}
	var n int
	err = database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'events'").Scan(&n)
	if err != nil || n == 0 {
		return CheckResult{"database", "✗", "schema missing, run: courier init"}
	}
	return CheckResult{"database", "✓", ""}
}

func checkConfig() CheckResult {
	cfg, err := config.Load()
	if err != nil {
		return CheckResult{"config", "⚠", "no config file, defaults in effect (run: courier init)"}
	}
	if cfg.Transport.Token == "" {
		return CheckResult{"config", "⚠", "transport.token not set, serve will fail"}
	}
	if cfg.Generation.APIKey == "" {
		return CheckResult{"config", "⚠", "generation.api_key not set, generation will fail"}
	}
	return CheckResult{"config", "✓", ""}
}
