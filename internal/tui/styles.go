package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/collabtask/internal/model"
)

// Color palette based on TUI design
var (
	// Priority colors
	PriorityHighColor   = lipgloss.Color("#FF6B6B")
	PriorityMediumColor = lipgloss.Color("#FFE66D")
	PriorityLowColor    = lipgloss.Color("#4ECDC4")

	// Status colors
	TodoColor       = lipgloss.Color("#85C1E2")
	InProgressColor = lipgloss.Color("#FFA07A")
	DoneColor       = lipgloss.Color("#95E1A3")
	Offline         = lipgloss.Color("#6C757D")

	// UI colors
	Primary   = lipgloss.Color("#4ECDC4")
	Surface   = lipgloss.Color("#16213e")
	TextMuted = lipgloss.Color("#888888")
	Border    = lipgloss.Color("#333333")
	Highlight = lipgloss.Color("#F7DC6F")
)

// Styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	// Presence sidebar
	SidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Border).
			Padding(1, 1)

	TaskListStyle = lipgloss.NewStyle().
			Padding(1, 2)

	TaskItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	TaskItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	TaskDoneStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Strikethrough(true).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Border)

	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(TextMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(PriorityHighColor)
)

// PriorityStyle returns the style for a given priority
func PriorityStyle(p model.Priority) lipgloss.Style {
	switch p {
	case model.PriorityHigh:
		return lipgloss.NewStyle().Foreground(PriorityHighColor).Bold(true)
	case model.PriorityMedium:
		return lipgloss.NewStyle().Foreground(PriorityMediumColor)
	default:
		return lipgloss.NewStyle().Foreground(PriorityLowColor)
	}
}

// FormatPriority returns a fixed-width priority badge
func FormatPriority(p model.Priority) string {
	label := "LOW "
	switch p {
	case model.PriorityHigh:
		label = "HIGH"
	case model.PriorityMedium:
		label = "MED "
	}
	return PriorityStyle(p).Render(label)
}

// FormatStatus returns a colored status badge
func FormatStatus(s model.Status) string {
	switch s {
	case model.StatusInProgress:
		return lipgloss.NewStyle().Foreground(InProgressColor).Render("[~]")
	case model.StatusDone:
		return lipgloss.NewStyle().Foreground(DoneColor).Render("[x]")
	default:
		return lipgloss.NewStyle().Foreground(TodoColor).Render("[ ]")
	}
}

// UserStyle renders text in a participant's color
func UserStyle(color string) lipgloss.Style {
	if color == "" {
		return lipgloss.NewStyle().Foreground(TextMuted)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}
