package tui

import (
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
)

// Mode represents the current UI mode
type Mode int

const (
	ModeJoin Mode = iota
	ModeConnecting
	ModeNormal
	ModeAddTask
	ModeEditTask
	ModeHelp
)

const (
	typingTTL     = 3 * time.Second
	typingEvery   = time.Second
	messageTTL    = 5 * time.Second
	connectWithin = 10 * time.Second
)

// Model is the live board
type Model struct {
	serverURL string
	username  string

	session *client.Session
	view    *client.Reconciler

	// UI state
	width  int
	height int
	mode   Mode
	filter string
	cursor int

	input      textinput.Model
	editID     int64
	lastTyping time.Time

	// username -> last typing indicator
	typing map[string]time.Time

	message   string
	messageAt time.Time
	err       error
}

// NewModel creates a board for serverURL. With an empty username the board
// starts at the join prompt.
func NewModel(serverURL, username string) Model {
	logger.Info("Initializing board", logger.F("server", serverURL))

	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		serverURL: serverURL,
		username:  username,
		view:      client.NewReconciler(),
		mode:      ModeJoin,
		filter:    client.FilterAll,
		input:     ti,
		typing:    make(map[string]time.Time),
	}
	if username != "" {
		m.mode = ModeConnecting
	} else {
		m.input.Placeholder = "Your name..."
		m.input.Focus()
	}
	return m
}

// Session returns the joined session, or nil before the join completes
func (m Model) Session() *client.Session {
	return m.session
}

func (m Model) visible() []model.Item {
	return m.view.Filter(m.filter)
}

func (m Model) current() (model.Item, bool) {
	items := m.visible()
	if m.cursor < 0 || m.cursor >= len(items) {
		return model.Item{}, false
	}
	return items[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) notify(text string) {
	m.message = text
	m.messageAt = time.Now()
}

// typers returns who has typed recently, excluding this participant
func (m Model) typers(now time.Time) []string {
	var names []string
	for name, at := range m.typing {
		if now.Sub(at) < typingTTL && name != m.username {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
