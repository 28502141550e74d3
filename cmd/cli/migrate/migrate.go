package migrate

import (
	"fmt"

	"github.com/crucial707/memberportal/internal/config"
	"github.com/crucial707/memberportal/internal/db"
	"github.com/spf13/cobra"
)

// runMigrations is db.Run; swapped out in tests.
var runMigrations = db.Run

// ==========================
// Init Migrate
// ==========================
func InitMigrate(rootCmd *cobra.Command) {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(upCmd())
	rootCmd.AddCommand(migrateCmd)
}

// ==========================
// UP
// ==========================
func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := runMigrations(db.URL(config.Load()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
			return nil
		},
	}
}
