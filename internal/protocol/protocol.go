// Package protocol defines the JSON envelope exchanged over the live
// WebSocket channel.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/existflow/collabtask/internal/model"
)

// Message types
const (
	// client -> server
	TypeJoin       = "join"
	TypeItemUpdate = "item-update"

	// server -> client
	TypeJoined           = "joined"
	TypeItemCreated      = "item-created"
	TypeItemUpdated      = "item-updated"
	TypeItemDeleted      = "item-deleted"
	TypePresenceSnapshot = "presence-snapshot"
	TypeError            = "error"

	// both directions
	TypeTyping = "typing-indicator"
)

// Error codes carried by TypeError messages
const (
	CodeBadRequest  = "bad_request"
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
)

// Message is the envelope for every frame
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is sent by a client to enter the presence list
type JoinRequest struct {
	Username string `json:"username"`
	Color    string `json:"color,omitempty"`
}

// Deleted is the payload of TypeItemDeleted
type Deleted struct {
	ID int64 `json:"id"`
}

// ErrorPayload is the payload of TypeError
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds a message with a JSON encoded payload
func New(typ string, data any) (Message, error) {
	if data == nil {
		return Message{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s: %w", typ, err)
	}
	return Message{Type: typ, Data: raw}, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: missing data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", m.Type, err)
	}
	return nil
}

// ItemCreated builds a TypeItemCreated message
func ItemCreated(item model.Item) Message {
	return mustNew(TypeItemCreated, item)
}

// ItemUpdated builds a TypeItemUpdated message
func ItemUpdated(item model.Item) Message {
	return mustNew(TypeItemUpdated, item)
}

// ItemDeleted builds a TypeItemDeleted message
func ItemDeleted(id int64) Message {
	return mustNew(TypeItemDeleted, Deleted{ID: id})
}

// PresenceSnapshot builds a TypePresenceSnapshot message
func PresenceSnapshot(entries []model.PresenceEntry) Message {
	if entries == nil {
		entries = []model.PresenceEntry{}
	}
	return mustNew(TypePresenceSnapshot, entries)
}

// Joined builds the TypeJoined reply sent to a joining connection
func Joined(entry model.PresenceEntry) Message {
	return mustNew(TypeJoined, entry)
}

// Error builds a TypeError message
func Error(code, message string) Message {
	return mustNew(TypeError, ErrorPayload{Code: code, Message: message})
}

// mustNew is used for payload types that always marshal
func mustNew(typ string, data any) Message {
	msg, err := New(typ, data)
	if err != nil {
		panic(err)
	}
	return msg
}
