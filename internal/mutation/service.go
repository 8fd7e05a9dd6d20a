// Package mutation validates item changes, writes them through the store
// and publishes the stored result.
package mutation

import (
	"context"
	"sync"

	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
)

// Store is the persistence the service writes through
type Store interface {
	ListTasks(ctx context.Context) ([]model.Item, error)
	GetTask(ctx context.Context, id int64) (model.Item, error)
	CreateTask(ctx context.Context, f model.Fields) (model.Item, error)
	UpdateTask(ctx context.Context, id int64, f model.Fields) (model.Item, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
}

// Publisher fans events out to live connections
type Publisher interface {
	Publish(msg protocol.Message, exclude ...string) int
}

// Service applies mutations. Every successful mutation publishes exactly
// one event carrying the stored record, after the write has returned, to
// every live connection including the one that asked for it. origin only
// labels the log line.
type Service struct {
	store Store
	pub   Publisher

	// write and publish of the same item happen under one stripe so
	// events for an item go out in write-completion order
	stripes [64]sync.Mutex

	// creates hold gate exclusively until item-created is out, so no
	// update or delete of a new id can be published ahead of it
	gate sync.RWMutex
}

// NewService creates a mutation service
func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub}
}

func (s *Service) lockItem(id int64) func() {
	s.gate.RLock()
	mu := &s.stripes[uint64(id)%uint64(len(s.stripes))]
	mu.Lock()
	return func() {
		mu.Unlock()
		s.gate.RUnlock()
	}
}

// ListItems returns every item, newest first
func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	return s.store.ListTasks(ctx)
}

// GetItem returns one item
func (s *Service) GetItem(ctx context.Context, id int64) (model.Item, error) {
	return s.store.GetTask(ctx, id)
}

// CreateItem stores a new item and publishes item-created
func (s *Service) CreateItem(ctx context.Context, f model.Fields, origin string) (model.Item, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	item, err := s.store.CreateTask(ctx, f)
	if err != nil {
		return model.Item{}, err
	}

	n := s.pub.Publish(protocol.ItemCreated(item))
	logger.Info("Task created",
		logger.F("id", item.ID),
		logger.F("origin", origin),
		logger.F("delivered", n))
	return item, nil
}

// UpdateItem overwrites an item and publishes item-updated
func (s *Service) UpdateItem(ctx context.Context, id int64, f model.Fields, origin string) (model.Item, error) {
	defer s.lockItem(id)()

	item, err := s.store.UpdateTask(ctx, id, f)
	if err != nil {
		return model.Item{}, err
	}

	n := s.pub.Publish(protocol.ItemUpdated(item))
	logger.Info("Task updated",
		logger.F("id", item.ID),
		logger.F("status", item.Status),
		logger.F("origin", origin),
		logger.F("delivered", n))
	return item, nil
}

// DeleteItem removes an item and publishes item-deleted. Deleting a
// missing id succeeds and still publishes.
func (s *Service) DeleteItem(ctx context.Context, id int64, origin string) error {
	defer s.lockItem(id)()

	removed, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}

	n := s.pub.Publish(protocol.ItemDeleted(id))
	logger.Info("Task deleted",
		logger.F("id", id),
		logger.F("removed", removed),
		logger.F("origin", origin),
		logger.F("delivered", n))
	return nil
}
