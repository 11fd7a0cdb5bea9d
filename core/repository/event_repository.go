package repository

import (
	"context"
	"sync"
	"time"

	"esign-orchestrator/core/models"

	"github.com/google/uuid"
)

// maxEventsPerRun bounds a single run's log. A sign job polled every 500ms
// for a long time would otherwise grow without limit.
const maxEventsPerRun = 1000

// EventRepository keeps the lifecycle events of runs. Events live only as
// long as the run is retained by the process.
type EventRepository struct {
	mu     sync.RWMutex
	events map[string][]models.RunEvent
}

// NewEventRepository creates a new event repository
func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[string][]models.RunEvent)}
}

// CreateEvent appends an event to its run's log
func (r *EventRepository) CreateEvent(_ context.Context, event models.RunEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	log := append(r.events[event.RunID], event)
	if len(log) > maxEventsPerRun {
		log = log[len(log)-maxEventsPerRun:]
	}
	r.events[event.RunID] = log
	return nil
}

// GetRunEvents retrieves events for a run, newest first
func (r *EventRepository) GetRunEvents(_ context.Context, runID string, limit int) ([]models.RunEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.events[runID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	events := make([]models.RunEvent, 0, limit)
	for i := len(log) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, log[i])
	}
	return events, nil
}

// DeleteRunEvents drops a run's log
func (r *EventRepository) DeleteRunEvents(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, runID)
	return nil
}
