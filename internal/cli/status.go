package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/existflow/collabtask/internal/model"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id] [status]",
	Short: "Move a task to another status",
	Long: `Move a task to todo, in-progress or done.

Examples:
  collabtask status 3 done`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id: %s", arg)
	}
	return id, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	status := model.Status(args[1])
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", args[1])
	}

	api := newAPI()
	ctx := context.Background()

	// updates overwrite every field, so start from the stored record
	item, err := api.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", id, err)
	}
	f := item.Fields()
	f.Status = status

	item, err = api.Update(ctx, id, stamp(f))
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", statusIcon(item.Status), item.Title)
	return nil
}
