package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

// ErrJoinClosed is returned when the connection ends before the join is acknowledged
var ErrJoinClosed = errors.New("connection closed before join completed")

// Session is a joined participant: a live connection, the REST client and
// the reconciled view. Mutations go through REST; their results reach the
// view through the broadcast, in the same order as everyone else's.
type Session struct {
	API  *API
	Conn *Conn
	View *Reconciler
	Self model.PresenceEntry

	notify chan protocol.Message
}

// Connect dials the server, joins as username and loads the current items
func Connect(ctx context.Context, serverURL, username, color string) (*Session, error) {
	conn, err := Dial(ctx, serverURL)
	if err != nil {
		return nil, err
	}

	s := &Session{
		API:    NewAPI(serverURL),
		Conn:   conn,
		View:   NewReconciler(),
		notify: make(chan protocol.Message, eventBufferSize),
	}

	if err := conn.Join(username, color); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join: %w", err)
	}

	// item events that arrive before the list fetch are replayed after it
	pending, err := s.awaitJoined(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.API.ConnectionID = s.Self.ConnectionID

	items, err := s.API.List(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	s.View.Reset(items)
	for _, msg := range pending {
		s.View.Apply(msg)
	}

	go s.run()
	return s, nil
}

func (s *Session) awaitJoined(ctx context.Context) ([]protocol.Message, error) {
	var pending []protocol.Message
	for {
		select {
		case msg, ok := <-s.Conn.Events():
			if !ok {
				return nil, ErrJoinClosed
			}
			switch msg.Type {
			case protocol.TypeJoined:
				if err := msg.Decode(&s.Self); err != nil {
					return nil, err
				}
				return pending, nil
			case protocol.TypeError:
				var e protocol.ErrorPayload
				msg.Decode(&e)
				return nil, fmt.Errorf("join rejected: %s", e.Message)
			default:
				pending = append(pending, msg)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Session) run() {
	defer close(s.notify)
	for msg := range s.Conn.Events() {
		if err := s.View.Apply(msg); err != nil {
			logger.Warn("Failed to apply event", logger.F("type", msg.Type), logger.Err(err))
		}
		// the view is the source of truth; a slow reader only misses wake-ups
		select {
		case s.notify <- msg:
		default:
		}
	}
}

// Updates yields every message after it has been applied to the view. It is
// closed when the connection ends.
func (s *Session) Updates() <-chan protocol.Message {
	return s.notify
}

func (s *Session) stamp(f model.Fields) model.Fields {
	f.AssignedUser = s.Self.Username
	f.UserColor = s.Self.Color
	return f
}

// Create adds a task as this participant
func (s *Session) Create(ctx context.Context, f model.Fields) (model.Item, error) {
	return s.API.Create(ctx, s.stamp(f))
}

// Update overwrites a task as this participant
func (s *Session) Update(ctx context.Context, id int64, f model.Fields) (model.Item, error) {
	return s.API.Update(ctx, id, s.stamp(f))
}

// SetStatus moves a task in the local view to status
func (s *Session) SetStatus(ctx context.Context, id int64, status model.Status) (model.Item, error) {
	item, ok := s.View.Item(id)
	if !ok {
		return model.Item{}, fmt.Errorf("task %d not in view", id)
	}
	f := item.Fields()
	f.Status = status
	return s.Update(ctx, id, f)
}

// Delete removes a task
func (s *Session) Delete(ctx context.Context, id int64) error {
	return s.API.Delete(ctx, id)
}

// Typing tells the others this participant is typing
func (s *Session) Typing(payload any) error {
	return s.Conn.Typing(payload)
}

// Close leaves the board
func (s *Session) Close() error {
	return s.Conn.Close()
}
