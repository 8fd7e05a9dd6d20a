package model

import (
	"strings"
	"time"
)

// Status of a task
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists every status in board order
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid returns true for a known status
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid returns true for a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Item is a shared task on the board
type Item struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	AssignedUser string    `json:"assigned_user"`
	UserColor    string    `json:"user_color"`
	CreatedAt    time.Time `json:"created_at"`
}

// Fields holds the mutable part of an item
type Fields struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       Status   `json:"status,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	AssignedUser string   `json:"assigned_user"`
	UserColor    string   `json:"user_color"`
}

// WithDefaults fills in status and priority when absent and trims the title
func (f Fields) WithDefaults() Fields {
	f.Title = strings.TrimSpace(f.Title)
	if f.Status == "" {
		f.Status = StatusTodo
	}
	if f.Priority == "" {
		f.Priority = PriorityMedium
	}
	return f
}

// Fields returns the mutable part of the item
func (i Item) Fields() Fields {
	return Fields{
		Title:        i.Title,
		Description:  i.Description,
		Status:       i.Status,
		Priority:     i.Priority,
		AssignedUser: i.AssignedUser,
		UserColor:    i.UserColor,
	}
}
