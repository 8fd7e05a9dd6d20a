package mutation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/existflow/collabtask/internal/db"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/go-playground/assert/v2"
)

type published struct {
	msg     protocol.Message
	exclude []string
}

// recordingPublisher checks that every published item is already stored
type recordingPublisher struct {
	t     *testing.T
	store *db.DB

	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(msg protocol.Message, exclude ...string) int {
	if msg.Type == protocol.TypeItemCreated || msg.Type == protocol.TypeItemUpdated {
		var item model.Item
		if err := msg.Decode(&item); err != nil {
			p.t.Errorf("decode: %v", err)
		}
		stored, err := p.store.GetTask(context.Background(), item.ID)
		if err != nil {
			p.t.Errorf("published item %d not stored: %v", item.ID, err)
		}
		if stored.Status != item.Status || stored.Title != item.Title {
			p.t.Errorf("published %+v, stored %+v", item, stored)
		}
	}
	p.mu.Lock()
	p.msgs = append(p.msgs, published{msg: msg, exclude: exclude})
	p.mu.Unlock()
	return 1
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published{}, p.msgs...)
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	store, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	pub := &recordingPublisher{t: t, store: store}
	return NewService(store, pub), pub
}

func TestCreateItemPublishesCanonicalRecord(t *testing.T) {
	svc, pub := newTestService(t)

	item, err := svc.CreateItem(context.Background(), model.Fields{
		Title:    "Write spec",
		Priority: model.PriorityHigh,
	}, "conn-a")
	assert.Equal(t, err, nil)
	assert.Equal(t, item.ID, int64(1))
	assert.Equal(t, item.Status, model.StatusTodo)

	msgs := pub.all()
	assert.Equal(t, len(msgs), 1)
	assert.Equal(t, msgs[0].msg.Type, protocol.TypeItemCreated)
	assert.Equal(t, len(msgs[0].exclude), 0)

	var got model.Item
	assert.Equal(t, msgs[0].msg.Decode(&got), nil)
	assert.Equal(t, got.ID, item.ID)
	assert.Equal(t, got.Status, model.StatusTodo)
}

func TestCreateItemValidationDoesNotPublish(t *testing.T) {
	svc, pub := newTestService(t)

	_, err := svc.CreateItem(context.Background(), model.Fields{Title: ""}, "")
	assert.Equal(t, errors.Is(err, db.ErrValidation), true)
	assert.Equal(t, len(pub.all()), 0)
}

func TestUpdateItemNotFoundDoesNotPublish(t *testing.T) {
	svc, pub := newTestService(t)

	_, err := svc.UpdateItem(context.Background(), 5, model.Fields{Title: "x"}, "")
	assert.Equal(t, errors.Is(err, db.ErrNotFound), true)
	assert.Equal(t, len(pub.all()), 0)
}

func TestUpdateItemPublishesStoredRecordNotInput(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, _ := svc.CreateItem(ctx, model.Fields{Title: "Write spec"}, "")

	// status and priority left out of the request come back defaulted
	updated, err := svc.UpdateItem(ctx, created.ID, model.Fields{Title: " Write spec "}, "conn-b")
	assert.Equal(t, err, nil)

	msgs := pub.all()
	assert.Equal(t, len(msgs), 2)
	var got model.Item
	msgs[1].msg.Decode(&got)
	assert.Equal(t, got.Title, "Write spec")
	assert.Equal(t, got.Priority, model.PriorityMedium)
	assert.Equal(t, got.CreatedAt.Equal(created.CreatedAt), true)
	assert.Equal(t, updated.Title, "Write spec")
}

func TestDeleteItemAlwaysPublishes(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	assert.Equal(t, svc.DeleteItem(ctx, 77, ""), nil)
	assert.Equal(t, svc.DeleteItem(ctx, 77, ""), nil)

	msgs := pub.all()
	assert.Equal(t, len(msgs), 2)
	var d protocol.Deleted
	msgs[1].msg.Decode(&d)
	assert.Equal(t, d.ID, int64(77))

	items, _ := svc.ListItems(ctx)
	assert.Equal(t, len(items), 0)
}

func TestConcurrentUpdatesLastWriterWins(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	item, _ := svc.CreateItem(ctx, model.Fields{Title: "race"}, "")

	var wg sync.WaitGroup
	for _, p := range []model.Priority{model.PriorityLow, model.PriorityHigh} {
		wg.Add(1)
		go func(p model.Priority) {
			defer wg.Done()
			_, err := svc.UpdateItem(ctx, item.ID, model.Fields{Title: "race", Priority: p}, "")
			if err != nil {
				t.Error(err)
			}
		}(p)
	}
	wg.Wait()

	stored, _ := svc.GetItem(ctx, item.ID)
	msgs := pub.all()
	var last model.Item
	msgs[len(msgs)-1].msg.Decode(&last)
	assert.Equal(t, last.Priority, stored.Priority)
}

type downStore struct{ Store }

func (downStore) CreateTask(context.Context, model.Fields) (model.Item, error) {
	return model.Item{}, db.ErrUnavailable
}

func (downStore) DeleteTask(context.Context, int64) (bool, error) {
	return false, db.ErrUnavailable
}

func TestStoreUnavailableDoesNotPublish(t *testing.T) {
	pub := &recordingPublisher{t: t}
	svc := NewService(downStore{}, pub)

	_, err := svc.CreateItem(context.Background(), model.Fields{Title: "x"}, "")
	assert.Equal(t, errors.Is(err, db.ErrUnavailable), true)
	assert.Equal(t, errors.Is(svc.DeleteItem(context.Background(), 1, ""), db.ErrUnavailable), true)
	assert.Equal(t, len(pub.all()), 0)
}

func TestCreatedPublishedBeforeUpdatesOfNewItem(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.CreateItem(ctx, model.Fields{Title: "fresh"}, "")
	}()
	go func() {
		defer wg.Done()
		for {
			if _, err := svc.UpdateItem(ctx, 1, model.Fields{Title: "edited"}, ""); err == nil {
				return
			}
		}
	}()
	wg.Wait()

	msgs := pub.all()
	assert.Equal(t, len(msgs), 2)
	assert.Equal(t, msgs[0].msg.Type, protocol.TypeItemCreated)
	assert.Equal(t, msgs[1].msg.Type, protocol.TypeItemUpdated)
}
