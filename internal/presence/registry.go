// Package presence tracks who is connected right now.
//
// The registry state is owned by a single goroutine. Join and Leave are
// funnelled through it and the resulting snapshot is published from the
// same goroutine, so snapshots leave in the order the registry changed.
package presence

import (
	"errors"
	"strings"
	"sync"

	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

var (
	// ErrInvalidUsername is returned by Join for an empty username
	ErrInvalidUsername = errors.New("username is required")
	// ErrClosed is returned once the registry has been closed
	ErrClosed = errors.New("presence registry closed")
)

// Publisher receives presence snapshots
type Publisher interface {
	Publish(msg protocol.Message, exclude ...string) int
}

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opSnapshot
)

type op struct {
	kind  opKind
	entry model.PresenceEntry
	reply chan opResult
}

type opResult struct {
	entries []model.PresenceEntry
	changed bool
}

// Registry maps live connections to presence entries
type Registry struct {
	pub    Publisher
	ops    chan op
	stopCh chan struct{}
	done   chan struct{}

	stopOnce sync.Once
}

// NewRegistry starts a registry that publishes snapshots to pub
func NewRegistry(pub Publisher) *Registry {
	r := &Registry{
		pub:    pub,
		ops:    make(chan op),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Registry) loop() {
	defer close(r.done)

	var order []string
	entries := make(map[string]model.PresenceEntry)

	snapshot := func() []model.PresenceEntry {
		out := make([]model.PresenceEntry, 0, len(order))
		for _, id := range order {
			out = append(out, entries[id])
		}
		return out
	}

	for {
		select {
		case o := <-r.ops:
			var res opResult
			switch o.kind {
			case opJoin:
				id := o.entry.ConnectionID
				if _, ok := entries[id]; !ok {
					order = append(order, id)
				}
				entries[id] = o.entry
				res.changed = true
			case opLeave:
				id := o.entry.ConnectionID
				if _, ok := entries[id]; ok {
					delete(entries, id)
					for i, v := range order {
						if v == id {
							order = append(order[:i], order[i+1:]...)
							break
						}
					}
					res.changed = true
				}
			}
			res.entries = snapshot()
			if res.changed {
				r.pub.Publish(protocol.PresenceSnapshot(res.entries))
			}
			o.reply <- res
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) do(o op) (opResult, error) {
	o.reply = make(chan opResult, 1)
	select {
	case r.ops <- o:
	case <-r.done:
		return opResult{}, ErrClosed
	}
	return <-o.reply, nil
}

// Join adds or replaces the entry for connID and publishes a snapshot.
// A color outside the palette is replaced by a random palette color.
func (r *Registry) Join(connID, username, color string) (model.PresenceEntry, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.PresenceEntry{}, ErrInvalidUsername
	}
	if !model.InPalette(color) {
		color = model.RandomColor()
	}

	entry := model.PresenceEntry{ConnectionID: connID, Username: username, Color: color}
	if _, err := r.do(op{kind: opJoin, entry: entry}); err != nil {
		return model.PresenceEntry{}, err
	}

	logger.Info("User joined", logger.F("conn", connID), logger.F("username", username))
	return entry, nil
}

// Leave removes the entry for connID. It reports whether an entry existed;
// nothing is published when it did not.
func (r *Registry) Leave(connID string) bool {
	res, err := r.do(op{kind: opLeave, entry: model.PresenceEntry{ConnectionID: connID}})
	if err != nil {
		return false
	}
	if res.changed {
		logger.Info("User left", logger.F("conn", connID))
	}
	return res.changed
}

// Snapshot returns the entries in join order
func (r *Registry) Snapshot() []model.PresenceEntry {
	res, err := r.do(op{kind: opSnapshot})
	if err != nil {
		return []model.PresenceEntry{}
	}
	return res.entries
}

// Close stops the registry goroutine
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}
