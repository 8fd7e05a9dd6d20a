package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/model"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks, newest first, optionally filtered by status.

Examples:
  collabtask list
  collabtask list --status in-progress`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listStatus string

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", client.FilterAll, "Filter by status (all, todo, in-progress, done)")
}

func runList(cmd *cobra.Command, args []string) error {
	if listStatus != client.FilterAll && !model.Status(listStatus).Valid() {
		return fmt.Errorf("invalid status %q", listStatus)
	}

	items, err := newAPI().List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	view := client.NewReconciler()
	view.Reset(items)
	printItems(cmd.OutOrStdout(), view.Filter(listStatus), view.Stats())
	return nil
}

func printItems(w io.Writer, items []model.Item, st client.Stats) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No tasks found. Add one with: collabtask add \"Your task\"")
		return
	}

	fmt.Fprintf(w, "\n%d tasks (%d todo, %d in progress, %d done)\n", st.Total, st.Todo, st.InProgress, st.Done)
	fmt.Fprintln(w, strings.Repeat("─", 72))
	for _, item := range items {
		printItem(w, item)
	}
	fmt.Fprintln(w)
}

func statusIcon(s model.Status) string {
	switch s {
	case model.StatusInProgress:
		return "[~]"
	case model.StatusDone:
		return "[x]"
	default:
		return "[ ]"
	}
}

func printItem(w io.Writer, item model.Item) {
	priority := "  " + string(item.Priority)
	if item.Priority == model.PriorityHigh {
		priority = "▲ " + string(item.Priority)
	}

	title := item.Title
	if len([]rune(title)) > 40 {
		title = string([]rune(title)[:37]) + "..."
	}

	fmt.Fprintf(w, "  %s  %-5d  %-40s  %-8s  %s\n",
		statusIcon(item.Status), item.ID, title, priority, item.AssignedUser)
	if item.Description != "" {
		fmt.Fprintf(w, "               %s\n", item.Description)
	}
}
