package users

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crucial707/memberportal/cmd/cli/output"
	"github.com/crucial707/memberportal/cmd/cli/root"
	"github.com/crucial707/memberportal/internal/repo"
	"github.com/spf13/cobra"
)

// ==========================
// Init Users
// ==========================
func InitUsers(rootCmd *cobra.Command) {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect registered users",
	}
	usersCmd.AddCommand(listUsersCmd())
	rootCmd.AddCommand(usersCmd)
}

// ==========================
// LIST
// ==========================
func listUsersCmd() *cobra.Command {
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			if offset < 0 {
				return fmt.Errorf("--offset must not be negative, got %d", offset)
			}

			database, err := root.OpenDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			users, err := repo.NewUserRepo(database).List(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(users)
			}

			rows := make([][]interface{}, 0, len(users))
			for _, u := range users {
				rows = append(rows, []interface{}{u.ID, u.Username, u.Email, u.CreatedAt.Format(time.RFC3339)})
			}
			output.RenderTable(out, []string{"ID", "Username", "Email", "Created"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of users to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of users to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
