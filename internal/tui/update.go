package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

const actionTimeout = 10 * time.Second

// tickMsg is sent every second to expire notifications and typing hints
type tickMsg time.Time

type connectedMsg struct {
	session *client.Session
}

type connectErrMsg struct {
	err error
}

// eventMsg is a server message already applied to the session view
type eventMsg protocol.Message

type disconnectedMsg struct {
	err error
}

// actionMsg reports the outcome of a REST mutation
type actionMsg struct {
	text string
	err  error
}

// Init starts the clock and, with a known username, the connection
func (m Model) Init() tea.Cmd {
	if m.mode == ModeConnecting {
		return tea.Batch(tickCmd(), m.connect(m.username))
	}
	return tea.Batch(tickCmd(), textinput.Blink)
}

func tickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) connect(username string) tea.Cmd {
	serverURL := m.serverURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectWithin)
		defer cancel()

		s, err := client.Connect(ctx, serverURL, username, "")
		if err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{session: s}
	}
}

// waitForUpdate blocks until the session has applied the next server message
func waitForUpdate(s *client.Session) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.Updates()
		if !ok {
			return disconnectedMsg{err: s.Conn.Err()}
		}
		return eventMsg(msg)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		if m.message != "" && now.Sub(m.messageAt) >= messageTTL {
			m.message = ""
		}
		for name, at := range m.typing {
			if now.Sub(at) >= typingTTL {
				delete(m.typing, name)
			}
		}
		return m, tickCmd()

	case connectedMsg:
		m.session = msg.session
		m.view = msg.session.View
		m.username = msg.session.Self.Username
		m.mode = ModeNormal
		m.err = nil
		m.input.Blur()
		m.notify(fmt.Sprintf("Joined as %s", m.username))
		logger.Info("Joined board", logger.F("username", m.username),
			logger.F("conn", msg.session.Self.ConnectionID))
		return m, waitForUpdate(m.session)

	case connectErrMsg:
		logger.Warn("Failed to join", logger.Err(msg.err))
		m.err = msg.err
		m.mode = ModeJoin
		m.input.SetValue(m.username)
		m.input.Placeholder = "Your name..."
		m.input.Focus()
		return m, textinput.Blink

	case eventMsg:
		m.handleEvent(protocol.Message(msg))
		return m, waitForUpdate(m.session)

	case disconnectedMsg:
		m.err = msg.err
		if m.err == nil {
			m.err = errors.New("connection closed")
		}
		logger.Warn("Disconnected", logger.Err(m.err))
		m.notify("Disconnected from server")
		return m, nil

	case actionMsg:
		if msg.err != nil {
			logger.Warn("Action failed", logger.Err(msg.err))
			m.notify(fmt.Sprintf("Error: %v", msg.err))
		} else if msg.text != "" {
			m.notify(msg.text)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeJoin:
			return m.updateJoin(msg)
		case ModeConnecting:
			if key.Matches(msg, keys.Quit) {
				return m, tea.Quit
			}
			return m, nil
		case ModeAddTask, ModeEditTask:
			return m.updateInput(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

func (m *Model) handleEvent(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeTyping:
		var p typingPayload
		if err := msg.Decode(&p); err == nil && p.Username != "" {
			m.typing[p.Username] = time.Now()
		}
	case protocol.TypeItemCreated, protocol.TypeItemUpdated, protocol.TypeItemDeleted:
		m.notify(notification(msg))
	case protocol.TypeError:
		var e protocol.ErrorPayload
		msg.Decode(&e)
		m.notify(fmt.Sprintf("Error: %s", e.Message))
	}
	m.clampCursor()
}

func (m Model) updateJoin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		name := strings.TrimSpace(m.input.Value())
		if name == "" {
			return m, nil
		}
		m.username = name
		m.mode = ModeConnecting
		m.err = nil
		m.input.SetValue("")
		return m, m.connect(name)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Filter):
		m.filter = nextFilter(m.filter)
		m.cursor = 0

	case key.Matches(msg, keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, keys.Add):
		if !m.online() {
			m.notify("Not connected")
			return m, nil
		}
		m.mode = ModeAddTask
		m.input.SetValue("")
		m.input.Placeholder = "Task title..."
		m.input.Focus()
		return m, textinput.Blink

	case key.Matches(msg, keys.Edit):
		item, ok := m.current()
		if !ok {
			return m, nil
		}
		if !m.online() {
			m.notify("Not connected")
			return m, nil
		}
		m.mode = ModeEditTask
		m.editID = item.ID
		m.input.SetValue(item.Title)
		m.input.Placeholder = "Task title..."
		m.input.Focus()
		m.input.CursorEnd()
		return m, textinput.Blink

	case key.Matches(msg, keys.Status):
		return m.mutateCurrent(func(f *model.Fields) { f.Status = nextStatus(f.Status) })

	case key.Matches(msg, keys.Priority):
		return m.mutateCurrent(func(f *model.Fields) { f.Priority = nextPriority(f.Priority) })

	case key.Matches(msg, keys.Delete):
		item, ok := m.current()
		if !ok {
			return m, nil
		}
		if !m.online() {
			m.notify("Not connected")
			return m, nil
		}
		s := m.session
		return m, m.run(func(ctx context.Context) error {
			return s.Delete(ctx, item.ID)
		})
	}

	return m, nil
}

func (m Model) online() bool {
	return m.session != nil && m.err == nil
}

// mutateCurrent overwrites the selected item with edit applied
func (m Model) mutateCurrent(edit func(*model.Fields)) (tea.Model, tea.Cmd) {
	item, ok := m.current()
	if !ok {
		return m, nil
	}
	if !m.online() {
		m.notify("Not connected")
		return m, nil
	}
	f := item.Fields()
	edit(&f)
	s := m.session
	return m, m.run(func(ctx context.Context) error {
		_, err := s.Update(ctx, item.ID, f)
		return err
	})
}

// run performs a mutation off the UI loop. Its result reaches the view
// through the broadcast, so only failures are reported here.
func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{err: fn(ctx)}
	}
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.mode = ModeNormal
		m.input.Blur()
		return m, nil

	case key.Matches(msg, keys.Enter):
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = ModeNormal
		m.input.Blur()
		if value == "" {
			return m, nil
		}

		s := m.session
		if mode == ModeAddTask {
			return m, m.run(func(ctx context.Context) error {
				_, err := s.Create(ctx, model.Fields{Title: value})
				return err
			})
		}
		item, ok := m.view.Item(m.editID)
		if !ok {
			m.notify("Task no longer exists")
			return m, nil
		}
		f := item.Fields()
		f.Title = value
		return m, m.run(func(ctx context.Context) error {
			_, err := s.Update(ctx, item.ID, f)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, tea.Batch(cmd, m.sendTyping())
}

// sendTyping relays a typing indicator at most once per typingEvery
func (m *Model) sendTyping() tea.Cmd {
	if !m.online() || time.Since(m.lastTyping) < typingEvery {
		return nil
	}
	m.lastTyping = time.Now()
	s := m.session
	return func() tea.Msg {
		if err := s.Typing(typingPayload{Username: s.Self.Username, Color: s.Self.Color}); err != nil {
			logger.Debug("Typing indicator failed", logger.Err(err))
		}
		return nil
	}
}
