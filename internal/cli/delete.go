package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [task-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Delete a task by its ID. Deleting a task that is already gone succeeds.

Examples:
  collabtask delete 3
  collabtask rm 3`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := newAPI().Delete(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
	return nil
}
