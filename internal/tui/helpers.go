package tui

import (
	"fmt"

	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

// truncate shortens a string to max runes with ellipsis
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

var filters = []string{
	client.FilterAll,
	string(model.StatusTodo),
	string(model.StatusInProgress),
	string(model.StatusDone),
}

func nextFilter(current string) string {
	for i, f := range filters {
		if f == current {
			return filters[(i+1)%len(filters)]
		}
	}
	return client.FilterAll
}

func nextStatus(s model.Status) model.Status {
	switch s {
	case model.StatusTodo:
		return model.StatusInProgress
	case model.StatusInProgress:
		return model.StatusDone
	default:
		return model.StatusTodo
	}
}

func nextPriority(p model.Priority) model.Priority {
	switch p {
	case model.PriorityLow:
		return model.PriorityMedium
	case model.PriorityMedium:
		return model.PriorityHigh
	default:
		return model.PriorityLow
	}
}

// typingPayload is what the board sends and expects in typing indicators
type typingPayload struct {
	Username string `json:"username"`
	Color    string `json:"color,omitempty"`
}

// notification describes an item event for the status bar
func notification(msg protocol.Message) string {
	switch msg.Type {
	case protocol.TypeItemCreated:
		var item model.Item
		if msg.Decode(&item) == nil {
			return fmt.Sprintf("New task added: %s", item.Title)
		}
	case protocol.TypeItemUpdated:
		var item model.Item
		if msg.Decode(&item) == nil {
			return fmt.Sprintf("Task updated: %s", item.Title)
		}
	case protocol.TypeItemDeleted:
		return "Task deleted"
	}
	return ""
}
