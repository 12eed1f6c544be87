package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/courier/internal/config"
	"github.com/example/courier/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the courier database and config",
		Long:  `Initialize the courier database at ~/.courier/courier.db and write a default config.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := db.GetDBPath()
			if err != nil {
				return fmt.Errorf("failed to get database path: %w", err)
			}

			fmt.Printf("Initializing courier database at %s\n", dbPath)

			if _, err := db.GetDB(); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			fmt.Println("✓ Database initialized successfully")

			if err := initConfig(); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			fmt.Println("✓ Config file at ~/.courier/config.json")
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  set transport.token and generation.api_key in the config")
			fmt.Println("  (or export COURIER_TELEGRAM_TOKEN / COURIER_OPENAI_KEY)")
			fmt.Println("  courier serve")

			return nil
		},
	}
}

// initConfig writes the default config.json unless one already exists.
func initConfig() error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, keep the operator's settings
	}
	return config.Save(config.Default())
}
