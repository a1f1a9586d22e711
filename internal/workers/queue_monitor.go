package workers

import (
	"context"
	"time"

	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/store"
)

// QueueMonitor periodically exports queue depth and flagged-entity counts as
// gauges so a stuck queue is visible before users notice.
type QueueMonitor struct {
	queue   *repositories.SyncQueueRepo
	store   *store.EntityStore
	metrics *metrics.MetricsRegistry
}

// NewQueueMonitor creates a new queue monitor
func NewQueueMonitor(queue *repositories.SyncQueueRepo, st *store.EntityStore, reg *metrics.MetricsRegistry) *QueueMonitor {
	return &QueueMonitor{queue: queue, store: st, metrics: reg}
}

// Start runs until the context is cancelled
func (m *QueueMonitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *QueueMonitor) sample(ctx context.Context) {
	depth, err := m.queue.Depth(ctx)
	if err != nil {
		logging.Warn("Queue monitor failed to read depth", "error", err.Error())
		return
	}
	m.metrics.QueueDepth.Set(float64(depth))

	inError, err := m.store.CountInError(ctx)
	if err != nil {
		logging.Warn("Queue monitor failed to count flagged entities", "error", err.Error())
		return
	}
	m.metrics.EntitiesInError.Set(float64(inError))
}
