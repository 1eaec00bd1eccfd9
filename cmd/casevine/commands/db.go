package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casevine/casevine/config"
	"github.com/casevine/casevine/db"
	"github.com/casevine/casevine/errors"
	"github.com/casevine/casevine/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage Casevine database",
	Long: `db — Manage Casevine database operations

Examples:
  casevine db migrate   # Apply pending schema migrations
  casevine db stats     # Show scheduled job and payment statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduled job and payment statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func openDatabase() (*sql.DB, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	path := cfg.GetDatabasePath()
	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database %s", path)
	}
	return database, path, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	fmt.Printf("Database %s is up to date\n", path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	var scheduledJobs int
	if err := database.QueryRow(`SELECT COUNT(*) FROM scheduled_jobs`).Scan(&scheduledJobs); err != nil {
		return fmt.Errorf("failed to count scheduled jobs: %w", err)
	}

	var escrowed, released int
	err = database.QueryRow(`
		SELECT
			COUNT(CASE WHEN status = 'escrowed' THEN 1 END),
			COUNT(CASE WHEN status = 'released' THEN 1 END)
		FROM payments
	`).Scan(&escrowed, &released)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to count payments: %w", err)
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:    %s\n", path)
	fmt.Printf("Scheduled Jobs:   %d\n", scheduledJobs)
	fmt.Printf("Escrowed:         %d\n", escrowed)
	fmt.Printf("Released:         %d\n", released)

	return nil
}
