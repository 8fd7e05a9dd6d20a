package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/existflow/collabtask/internal/model"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long: `Add a new task to the shared board.

Examples:
  collabtask add "Write spec"
  collabtask add "Fix login" -p high -d "Users on Safari cannot log in"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addDescription string
	addPriority    string
	addStatus      string
)

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Task description")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "Priority (low, medium, high)")
	addCmd.Flags().StringVarP(&addStatus, "status", "s", "", "Status (todo, in-progress, done)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	f := stamp(model.Fields{
		Title:       strings.Join(args, " "),
		Description: addDescription,
		Status:      model.Status(addStatus),
		Priority:    model.Priority(addPriority),
	})

	item, err := newAPI().Create(context.Background(), f)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", item.ID, item.Title)
	return nil
}

// stamp signs f with the configured user
func stamp(f model.Fields) model.Fields {
	f.AssignedUser = cfg.Username
	f.UserColor = cfg.UserColor()
	return f
}
