package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/existflow/collabtask/internal/hub"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 64 * 1024
	mutationTimeout = 15 * time.Second
)

// handleSocket upgrades to a WebSocket and serves the connection until it
// closes. The connection leaves the presence list exactly once.
func (s *Server) handleSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the request
		logger.Warn("WebSocket upgrade failed", logger.Err(err))
		return nil
	}

	id := uuid.NewString()
	hc := hub.NewConn(id, s.bufferSize)
	log := logger.WithFields(logger.F("conn", id))

	s.hub.Register(hc)
	log.Info("Connection opened", logger.F("remote", c.Request().RemoteAddr))

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			s.hub.Unregister(id)
			s.presence.Leave(id)
			conn.Close()
			log.Info("Connection closed")
		})
	}
	defer teardown()

	go s.writeLoop(conn, hc, log)
	s.readLoop(conn, id, log)
	return nil
}

// writeLoop is the only writer of conn. It drains the outbox and pings.
func (s *Server) writeLoop(conn *websocket.Conn, hc *hub.Conn, log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-hc.Outbox():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("Write failed", logger.F("type", msg.Type), logger.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("Ping failed", logger.Err(err))
				return
			}
		case <-hc.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, id string, log *logger.Logger) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Read failed", logger.Err(err))
			}
			return
		}
		// any inbound frame proves the peer is alive
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.Send(id, protocol.Error(protocol.CodeBadRequest, "invalid message"))
			continue
		}
		s.dispatch(id, msg, log)
	}
}

// dispatch handles one inbound message without blocking the read loop on
// store I/O
func (s *Server) dispatch(id string, msg protocol.Message, log *logger.Logger) {
	switch msg.Type {
	case protocol.TypeJoin:
		var req protocol.JoinRequest
		if err := msg.Decode(&req); err != nil {
			s.hub.Send(id, protocol.Error(protocol.CodeBadRequest, err.Error()))
			return
		}
		entry, err := s.presence.Join(id, req.Username, req.Color)
		if err != nil {
			s.hub.Send(id, socketError(err))
			return
		}
		s.hub.Send(id, protocol.Joined(entry))

	case protocol.TypeItemUpdate:
		var item model.Item
		if err := msg.Decode(&item); err != nil {
			s.hub.Send(id, protocol.Error(protocol.CodeBadRequest, err.Error()))
			return
		}
		if item.ID <= 0 {
			s.hub.Send(id, protocol.Error(protocol.CodeBadRequest, "item id is required"))
			return
		}
		if !s.beginMutation() {
			s.hub.Send(id, protocol.Error(protocol.CodeUnavailable, "server is shutting down"))
			return
		}
		go s.updateFromSocket(id, item, log)

	case protocol.TypeTyping:
		s.hub.Publish(msg, id)

	default:
		log.Debug("Unknown message type", logger.F("type", msg.Type))
		s.hub.Send(id, protocol.Error(protocol.CodeBadRequest, "unknown message type: "+msg.Type))
	}
}

// updateFromSocket writes an item-update. The origin receives the stored
// record through the broadcast like everyone else, and errors directly.
// The context is not tied to the connection, so the write still completes
// and broadcasts if the origin goes away.
func (s *Server) updateFromSocket(id string, item model.Item, log *logger.Logger) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
	defer cancel()

	if _, err := s.mutations.UpdateItem(ctx, item.ID, item.Fields(), id); err != nil {
		if _, code := errorStatus(err); code == protocol.CodeUnavailable {
			log.Error("Socket update failed", logger.F("id", item.ID), logger.Err(err))
		}
		s.hub.Send(id, socketError(err))
	}
}
