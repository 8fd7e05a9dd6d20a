package client

import (
	"slices"
	"sync"

	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

// FilterAll selects every status
const FilterAll = "all"

// Stats are counts over the local view
type Stats struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// Reconciler merges server events into a local, newest-first view
type Reconciler struct {
	mu    sync.RWMutex
	items []model.Item
	users []model.PresenceEntry
}

// NewReconciler returns an empty view
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reset replaces the local items with a full list fetch
func (r *Reconciler) Reset(items []model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = slices.Clone(items)
}

// Apply merges one server message. Types that do not touch the view are
// ignored.
func (r *Reconciler) Apply(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeItemCreated:
		var item model.Item
		if err := msg.Decode(&item); err != nil {
			return err
		}
		r.ApplyCreated(item)
	case protocol.TypeItemUpdated:
		var item model.Item
		if err := msg.Decode(&item); err != nil {
			return err
		}
		r.ApplyUpdated(item)
	case protocol.TypeItemDeleted:
		var d protocol.Deleted
		if err := msg.Decode(&d); err != nil {
			return err
		}
		r.ApplyDeleted(d.ID)
	case protocol.TypePresenceSnapshot:
		var users []model.PresenceEntry
		if err := msg.Decode(&users); err != nil {
			return err
		}
		r.ApplyPresence(users)
	}
	return nil
}

// ApplyCreated prepends item, or replaces it if it is already known
func (r *Reconciler) ApplyCreated(item model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(item.ID); i >= 0 {
		r.items[i] = item
		return
	}
	r.items = append([]model.Item{item}, r.items...)
}

// ApplyUpdated replaces item, or inserts it if a create was missed
func (r *Reconciler) ApplyUpdated(item model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(item.ID); i >= 0 {
		r.items[i] = item
		return
	}
	r.items = append([]model.Item{item}, r.items...)
}

// ApplyDeleted removes the item with id, if present
func (r *Reconciler) ApplyDeleted(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(id); i >= 0 {
		r.items = slices.Delete(r.items, i, i+1)
	}
}

// ApplyPresence replaces the presence list wholesale
func (r *Reconciler) ApplyPresence(users []model.PresenceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = slices.Clone(users)
}

func (r *Reconciler) index(id int64) int {
	return slices.IndexFunc(r.items, func(it model.Item) bool { return it.ID == id })
}

// Items returns a copy of the local items
func (r *Reconciler) Items() []model.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// Item returns one local item
func (r *Reconciler) Item(id int64) (model.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(id); i >= 0 {
		return r.items[i], true
	}
	return model.Item{}, false
}

// Filter returns the items with the given status; "all" or "" returns every item
func (r *Reconciler) Filter(status string) []model.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if status == "" || status == FilterAll {
		return slices.Clone(r.items)
	}
	out := []model.Item{}
	for _, it := range r.items {
		if string(it.Status) == status {
			out = append(out, it)
		}
	}
	return out
}

// Stats counts the local items per status
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Total: len(r.items)}
	for _, it := range r.items {
		switch it.Status {
		case model.StatusTodo:
			s.Todo++
		case model.StatusInProgress:
			s.InProgress++
		case model.StatusDone:
			s.Done++
		}
	}
	return s
}

// Presence returns the last presence snapshot
func (r *Reconciler) Presence() []model.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.users)
}
