package cli

import (
	"context"
	"fmt"

	"github.com/existflow/collabtask/internal/model"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:     "update [task-id]",
	Aliases: []string{"edit"},
	Short:   "Change a task",
	Long: `Change any field of a task. Fields that are not given keep their
current value.

Examples:
  collabtask update 3 --title "Write the spec" -p high`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var (
	updateTitle       string
	updateDescription string
	updatePriority    string
	updateStatus      string
)

func init() {
	updateCmd.Flags().StringVarP(&updateTitle, "title", "t", "", "New title")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description")
	updateCmd.Flags().StringVarP(&updatePriority, "priority", "p", "", "Priority (low, medium, high)")
	updateCmd.Flags().StringVarP(&updateStatus, "status", "s", "", "Status (todo, in-progress, done)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	api := newAPI()
	ctx := context.Background()

	item, err := api.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", id, err)
	}

	f := item.Fields()
	flags := cmd.Flags()
	if flags.Changed("title") {
		f.Title = updateTitle
	}
	if flags.Changed("description") {
		f.Description = updateDescription
	}
	if flags.Changed("priority") {
		f.Priority = model.Priority(updatePriority)
	}
	if flags.Changed("status") {
		f.Status = model.Status(updateStatus)
	}

	item, err = api.Update(ctx, id, stamp(f))
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated task %d\n", item.ID)
	printItem(cmd.OutOrStdout(), item)
	return nil
}
