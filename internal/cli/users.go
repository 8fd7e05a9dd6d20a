package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Show who is online",
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

func runUsers(cmd *cobra.Command, args []string) error {
	users, err := newAPI().Users(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(w, "Nobody is online")
		return nil
	}
	fmt.Fprintf(w, "%d online\n", len(users))
	for _, u := range users {
		fmt.Fprintf(w, "  %-20s %s\n", u.Username, u.Color)
	}
	return nil
}
