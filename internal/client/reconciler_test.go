package client

import (
	"testing"

	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/go-playground/assert/v2"
)

func ids(items []model.Item) []int64 {
	out := []int64{}
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestCreatedPrependsOrReplaces(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Item{{ID: 1, Title: "one"}})

	assert.Equal(t, r.Apply(protocol.ItemCreated(model.Item{ID: 2, Title: "two"})), nil)
	assert.Equal(t, ids(r.Items()), []int64{2, 1})

	// an echo of a known item replaces rather than duplicates
	r.Apply(protocol.ItemCreated(model.Item{ID: 2, Title: "two again"}))
	assert.Equal(t, ids(r.Items()), []int64{2, 1})
	it, _ := r.Item(2)
	assert.Equal(t, it.Title, "two again")
}

func TestUpdatedReplacesOrInserts(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Item{{ID: 1, Status: model.StatusTodo}})

	r.Apply(protocol.ItemUpdated(model.Item{ID: 1, Status: model.StatusDone}))
	it, ok := r.Item(1)
	assert.Equal(t, ok, true)
	assert.Equal(t, it.Status, model.StatusDone)

	// missed create heals on update
	r.Apply(protocol.ItemUpdated(model.Item{ID: 9, Status: model.StatusTodo}))
	assert.Equal(t, ids(r.Items()), []int64{9, 1})
}

func TestDeletedRemovesOrNoop(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Item{{ID: 1}, {ID: 2}})

	r.Apply(protocol.ItemDeleted(1))
	assert.Equal(t, ids(r.Items()), []int64{2})

	r.Apply(protocol.ItemDeleted(1))
	assert.Equal(t, ids(r.Items()), []int64{2})
}

func TestPresenceReplacedWholesale(t *testing.T) {
	r := NewReconciler()
	r.Apply(protocol.PresenceSnapshot([]model.PresenceEntry{{ConnectionID: "a"}, {ConnectionID: "b"}}))
	assert.Equal(t, len(r.Presence()), 2)

	r.Apply(protocol.PresenceSnapshot([]model.PresenceEntry{{ConnectionID: "b"}}))
	assert.Equal(t, r.Presence(), []model.PresenceEntry{{ConnectionID: "b"}})
}

func TestFilterAndStats(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Item{
		{ID: 4, Status: model.StatusDone},
		{ID: 3, Status: model.StatusInProgress},
		{ID: 2, Status: model.StatusTodo},
		{ID: 1, Status: model.StatusTodo},
	})

	assert.Equal(t, ids(r.Filter(FilterAll)), []int64{4, 3, 2, 1})
	assert.Equal(t, ids(r.Filter("todo")), []int64{2, 1})
	assert.Equal(t, ids(r.Filter("in-progress")), []int64{3})
	assert.Equal(t, ids(r.Filter("blocked")), []int64{})
	assert.Equal(t, r.Stats(), Stats{Total: 4, Todo: 2, InProgress: 1, Done: 1})
}

func TestApplyIgnoresOtherTypes(t *testing.T) {
	r := NewReconciler()
	assert.Equal(t, r.Apply(protocol.Message{Type: protocol.TypeTyping}), nil)
	assert.Equal(t, r.Apply(protocol.Error(protocol.CodeNotFound, "x")), nil)
	assert.NotEqual(t, r.Apply(protocol.Message{Type: protocol.TypeItemCreated}), nil)
}

func TestResetCopiesInput(t *testing.T) {
	in := []model.Item{{ID: 1, Title: "a"}}
	r := NewReconciler()
	r.Reset(in)
	in[0].Title = "changed"

	it, _ := r.Item(1)
	assert.Equal(t, it.Title, "a")
}
