package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/collabtask/internal/model"
)

const sidebarWidth = 24

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.mode {
	case ModeJoin, ModeConnecting:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderJoin())
	case ModeHelp:
		return lipgloss.JoinVertical(lipgloss.Left, m.renderHelp(), m.renderStatusBar())
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.renderTaskList())

	if m.mode == ModeAddTask || m.mode == ModeEditTask {
		mainContent = lipgloss.Place(
			m.width, m.height-2,
			lipgloss.Center, lipgloss.Center,
			m.renderModal(),
			lipgloss.WithWhitespaceChars(" "),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, m.renderStatusBar())
}

func (m Model) renderJoin() string {
	content := HeaderStyle.Render("CollabTask") + "\n"
	content += HelpStyle.Render(m.serverURL) + "\n\n"

	if m.mode == ModeConnecting {
		content += fmt.Sprintf("Joining as %s...", m.username)
		return ModalStyle.Render(content)
	}

	content += "Enter your name to join\n\n"
	content += m.input.View() + "\n\n"
	if m.err != nil {
		content += ErrorStyle.Render(truncate(m.err.Error(), 60)) + "\n\n"
	}
	content += HelpStyle.Render("Enter:join  Esc:quit")
	return ModalStyle.Render(content)
}

func (m Model) renderSidebar() string {
	var s strings.Builder

	s.WriteString(HeaderStyle.Render("CollabTask") + "\n")
	s.WriteString(HelpStyle.Render(time.Now().Format("15:04:05")) + "\n")
	s.WriteString(lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", sidebarWidth-4)) + "\n\n")

	users := m.view.Presence()
	s.WriteString(fmt.Sprintf("Online (%d)\n", len(users)))
	for _, u := range users {
		name := truncate(u.Username, sidebarWidth-10)
		if m.session != nil && u.ConnectionID == m.session.Self.ConnectionID {
			name += " (you)"
		}
		s.WriteString(UserStyle(u.Color).Render("● "+name) + "\n")
	}

	if typers := m.typers(time.Now()); len(typers) > 0 {
		verb := "is"
		if len(typers) > 1 {
			verb = "are"
		}
		s.WriteString("\n" + HelpStyle.Render(truncate(strings.Join(typers, ", "), sidebarWidth-4)))
		s.WriteString("\n" + HelpStyle.Render(verb+" typing..."))
	}

	return SidebarStyle.Width(sidebarWidth).Height(m.height - 2).Render(s.String())
}

func (m Model) renderTaskList() string {
	width := m.width - sidebarWidth - 2
	var s strings.Builder

	st := m.view.Stats()
	header := fmt.Sprintf("Tasks [%s]", m.filter)
	counts := fmt.Sprintf("%d total · %d todo · %d in progress · %d done",
		st.Total, st.Todo, st.InProgress, st.Done)
	s.WriteString(HeaderStyle.Render(header) + "  " + HelpStyle.Render(counts) + "\n")
	s.WriteString(lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", max(width-4, 0))) + "\n\n")

	items := m.visible()
	if len(items) == 0 {
		s.WriteString(HelpStyle.Render("  No tasks. Press 'a' to add one."))
	}

	titleWidth := max(width-36, 10)
	for i, item := range items {
		cursor := "  "
		style := TaskItemStyle
		if i == m.cursor {
			cursor = "❯ "
			style = TaskItemSelectedStyle
		}
		if item.Status == model.StatusDone {
			style = TaskDoneStyle
		}

		title := style.Render(fmt.Sprintf("%-*s", titleWidth, truncate(item.Title, titleWidth)))
		user := UserStyle(item.UserColor).Render(truncate(item.AssignedUser, 12))
		s.WriteString(cursor + FormatStatus(item.Status) + title + " " + FormatPriority(item.Priority) + "  " + user + "\n")
	}

	return TaskListStyle.Width(width).Height(m.height - 2).Render(s.String())
}

func (m Model) renderStatusBar() string {
	help := "a:add  e:edit  x:status  p:priority  d:del  tab:filter  ?:help  q:quit"
	if m.message != "" {
		help = m.message
	}

	if m.err != nil && m.session != nil {
		offline := lipgloss.NewStyle().Foreground(Offline).Render("offline")
		avail := m.width - lipgloss.Width(help) - lipgloss.Width(offline) - 2
		if avail > 0 {
			help += strings.Repeat(" ", avail) + offline
		} else {
			help += " " + offline
		}
	}

	return StatusBarStyle.Width(m.width).Render(help)
}

func (m Model) renderModal() string {
	title := "Add Task"
	if m.mode == ModeEditTask {
		title = "Edit Task"
	}

	content := lipgloss.NewStyle().Bold(true).Render(title) + "\n\n"
	content += m.input.View() + "\n\n"
	content += HelpStyle.Render("Enter:save  Esc:cancel")

	return ModalStyle.Render(content)
}

func (m Model) renderHelp() string {
	help := `
╭─── Keyboard Shortcuts ───╮
│                          │
│  Navigation              │
│  ──────────              │
│  j/↓    Move down        │
│  k/↑    Move up          │
│  Tab/f  Next filter      │
│                          │
│  Actions                 │
│  ───────                 │
│  a       Add task        │
│  e       Edit title      │
│  x/Space Next status     │
│  p       Next priority   │
│  d       Delete          │
│                          │
│  Other                   │
│  ─────                   │
│  ?       Toggle help     │
│  q       Quit            │
│                          │
╰──────────────────────────╯

     Press any key to close
`
	return lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, help)
}
