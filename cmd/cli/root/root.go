package root

import (
	"context"
	"database/sql"
	"os"

	"github.com/crucial707/memberportal/internal/config"
	"github.com/crucial707/memberportal/internal/db"
	"github.com/crucial707/memberportal/internal/logging"
	"github.com/spf13/cobra"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:   "memberportal",
	Short: "Members portal admin CLI",
	Long: `Administrative commands for the members portal.
Reads the same DB_* environment variables (and .env in dev) as the web server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logging.Setup(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	},
}

// Optional helper to return the RootCmd
func GetRoot() *cobra.Command {
	return RootCmd
}

// OpenDB connects to the credential store configured in the environment.
// Tests replace it with a sqlmock connection.
var OpenDB = func(ctx context.Context) (*sql.DB, error) {
	return db.Connect(ctx, config.Load())
}
