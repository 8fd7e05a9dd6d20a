package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 10 * time.Second
	eventBufferSize = 256
)

// Conn is a live WebSocket connection to the server
type Conn struct {
	ws     *websocket.Conn
	events chan protocol.Message

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// socketURL turns http(s)://host into ws(s)://host/ws
func socketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme: %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Dial opens a live connection
func Dial(ctx context.Context, serverURL string) (*Conn, error) {
	wsURL, err := socketURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conn{
		ws:     ws,
		events: make(chan protocol.Message, eventBufferSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		var msg protocol.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.closeWith(err)
			return
		}
		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}

// Events yields server messages in arrival order; it is closed when the
// connection ends
func (c *Conn) Events() <-chan protocol.Message {
	return c.events
}

// Err returns why the connection ended
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) send(typ string, data any) error {
	msg, err := protocol.New(typ, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

// Join enters the presence list. An empty color lets the server pick one.
func (c *Conn) Join(username, color string) error {
	return c.send(protocol.TypeJoin, protocol.JoinRequest{Username: username, Color: color})
}

// UpdateItem sends a full item to be stored and relayed to the others
func (c *Conn) UpdateItem(item model.Item) error {
	return c.send(protocol.TypeItemUpdate, item)
}

// Typing relays payload to every other connection
func (c *Conn) Typing(payload any) error {
	return c.send(protocol.TypeTyping, payload)
}

func (c *Conn) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.ws.Close()
	})
}

// Close sends a close frame and shuts the connection
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.closeWith(nil)
	return nil
}
