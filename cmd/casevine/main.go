package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/casevine/casevine/cmd/casevine/commands"
	"github.com/casevine/casevine/config"
	"github.com/casevine/casevine/logger"
)

var rootCmd = &cobra.Command{
	Use:   "casevine",
	Short: "Casevine - reminder scheduling and live delivery for legal services",
	Long: `Casevine coordinates deferred work and live delivery for a legal
services platform: web push reminders, templated email, and escrowed
payment release, delivered to clients over a persistent WebSocket channel.

Available commands:
  serve   - Start the scheduler engine and WebSocket server
  db      - Manage database operations
  version - Show version information

Examples:
  casevine serve           # Start the service
  casevine db migrate      # Apply pending schema migrations
  casevine db stats        # Show scheduled job statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
