package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/go-playground/assert/v2"
)

// recorder collects published snapshots in order
type recorder struct {
	mu        sync.Mutex
	snapshots [][]model.PresenceEntry
}

func (r *recorder) Publish(msg protocol.Message, exclude ...string) int {
	var entries []model.PresenceEntry
	if err := msg.Decode(&entries); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.snapshots = append(r.snapshots, entries)
	r.mu.Unlock()
	return 1
}

func (r *recorder) last() []model.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func TestJoinPublishesSnapshot(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)
	defer r.Close()

	entry, err := r.Join("c1", "  ana ", "#FF6B6B")
	assert.Equal(t, err, nil)
	assert.Equal(t, entry.Username, "ana")
	assert.Equal(t, entry.Color, "#FF6B6B")

	assert.Equal(t, rec.count(), 1)
	assert.Equal(t, rec.last(), []model.PresenceEntry{entry})
}

func TestJoinRejectsEmptyName(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)
	defer r.Close()

	_, err := r.Join("c1", "   ", "")
	assert.Equal(t, err, ErrInvalidUsername)
	assert.Equal(t, rec.count(), 0)
}

func TestJoinPicksPaletteColor(t *testing.T) {
	r := NewRegistry(&recorder{})
	defer r.Close()

	entry, err := r.Join("c1", "ana", "hotpink")
	assert.Equal(t, err, nil)
	assert.Equal(t, model.InPalette(entry.Color), true)
}

func TestRejoinKeepsSlot(t *testing.T) {
	r := NewRegistry(&recorder{})
	defer r.Close()

	r.Join("c1", "ana", "")
	r.Join("c2", "ben", "")
	r.Join("c1", "ana2", "")

	snap := r.Snapshot()
	assert.Equal(t, len(snap), 2)
	assert.Equal(t, snap[0].Username, "ana2")
	assert.Equal(t, snap[1].Username, "ben")
}

func TestLeaveWithoutEntryIsNoop(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)
	defer r.Close()

	assert.Equal(t, r.Leave("ghost"), false)
	assert.Equal(t, rec.count(), 0)
}

func TestConcurrentJoinsThenOneLeave(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)
	defer r.Close()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Join(fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i), "")
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, len(r.Snapshot()), n)

	assert.Equal(t, r.Leave("c3"), true)

	snap := r.Snapshot()
	assert.Equal(t, len(snap), n-1)
	for _, e := range snap {
		assert.NotEqual(t, e.ConnectionID, "c3")
	}

	// snapshots are published in mutation order, the last reflects the leave
	assert.Equal(t, rec.count(), n+1)
	assert.Equal(t, rec.last(), snap)
	for i := 1; i < n; i++ {
		assert.Equal(t, len(rec.snapshots[i]), len(rec.snapshots[i-1])+1)
	}
}

func TestClosedRegistry(t *testing.T) {
	r := NewRegistry(&recorder{})
	r.Close()
	r.Close()

	_, err := r.Join("c1", "ana", "")
	assert.Equal(t, err, ErrClosed)
	assert.Equal(t, r.Leave("c1"), false)
	assert.Equal(t, len(r.Snapshot()), 0)
}
