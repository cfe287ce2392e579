package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// timelineRepository хранит историю заказов в памяти.
type timelineRepository struct {
	mu     sync.RWMutex
	events map[int64][]domain.TimelineEvent
}

func newTimelineRepository() *timelineRepository {
	return &timelineRepository{events: make(map[int64][]domain.TimelineEvent)}
}

// Append добавляет событие, сохраняя хронологический порядок.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.events[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.OrderID] = events
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

func (r *timelineRepository) snapshot() map[int64][]domain.TimelineEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[int64][]domain.TimelineEvent, len(r.events))
	for id, events := range r.events {
		snap[id] = append([]domain.TimelineEvent(nil), events...)
	}
	return snap
}

func (r *timelineRepository) restore(events map[int64][]domain.TimelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
