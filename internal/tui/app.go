package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/collabtask/internal/logger"
)

// Run shows the live board until the user quits
func Run(serverURL, username string) error {
	logger.Info("Launching board")
	p := tea.NewProgram(NewModel(serverURL, username), tea.WithAltScreen())

	final, err := p.Run()
	if m, ok := final.(Model); ok && m.session != nil {
		m.session.Close()
	}
	if err != nil {
		logger.Error("Board error", logger.Err(err))
		return fmt.Errorf("failed to run board: %w", err)
	}

	logger.Info("Board exited normally")
	return nil
}
