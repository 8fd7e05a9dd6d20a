package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/existflow/collabtask/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the board live",
	Long: `Join the board and follow every change as it happens. On a terminal this
opens the live board; otherwise each event is printed as one line.

Examples:
  collabtask watch
  collabtask watch -u ana | tee board.log`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return tui.Run(cfg.ServerURL, cfg.Username)
	}

	if cfg.Username == "" {
		return errors.New("a username is required to join, pass --user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	session, err := client.Connect(connectCtx, cfg.ServerURL, cfg.Username, cfg.UserColor())
	cancel()
	if err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}
	defer session.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Joined as %s, %d tasks\n", session.Self.Username, len(session.View.Items()))
	return follow(ctx, w, session.Updates(), session.Conn)
}

// follow prints one line per event until ctx ends or the stream closes
func follow(ctx context.Context, w io.Writer, updates <-chan protocol.Message, conn interface{ Err() error }) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-updates:
			if !ok {
				if err := conn.Err(); err != nil {
					logger.Warn("Watch ended", logger.Err(err))
					return fmt.Errorf("connection lost: %w", err)
				}
				return nil
			}
			if line := describe(msg); line != "" {
				fmt.Fprintf(w, "%s  %s\n", time.Now().Format("15:04:05"), line)
			}
		}
	}
}

// describe renders one event as a line of text
func describe(msg protocol.Message) string {
	switch msg.Type {
	case protocol.TypeItemCreated, protocol.TypeItemUpdated:
		var item model.Item
		if err := msg.Decode(&item); err != nil {
			return ""
		}
		verb := "added"
		if msg.Type == protocol.TypeItemUpdated {
			verb = "updated"
		}
		return fmt.Sprintf("%s %s #%d %q [%s, %s]", item.AssignedUser, verb, item.ID, item.Title, item.Status, item.Priority)
	case protocol.TypeItemDeleted:
		var d protocol.Deleted
		if err := msg.Decode(&d); err != nil {
			return ""
		}
		return fmt.Sprintf("task #%d deleted", d.ID)
	case protocol.TypePresenceSnapshot:
		var users []model.PresenceEntry
		if err := msg.Decode(&users); err != nil {
			return ""
		}
		return fmt.Sprintf("%d online", len(users))
	case protocol.TypeError:
		var e protocol.ErrorPayload
		msg.Decode(&e)
		return "error: " + e.Message
	}
	return ""
}
