package workers

import (
	"context"
	"time"

	"lotusflow/studiosync/internal/connectivity"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/services"
	"lotusflow/studiosync/internal/store"
)

type WorkersContainer struct {
	Sync    *SyncWorker
	Monitor *QueueMonitor
}

// InitWorkers starts the background loops: connectivity probing, the sync
// drain cycle, and the queue gauge sampler.
func InitWorkers(
	ctx context.Context,
	engine *services.SyncEngine,
	monitor *connectivity.Monitor,
	queue *repositories.SyncQueueRepo,
	st *store.EntityStore,
	reg *metrics.MetricsRegistry,
	syncInterval time.Duration,
) *WorkersContainer {
	syncWorker := NewSyncWorker(engine, monitor, syncInterval)
	queueMonitor := NewQueueMonitor(queue, st, reg)

	go monitor.Start(ctx)
	go syncWorker.Start(ctx)
	go queueMonitor.Start(ctx, 30*time.Second)

	return &WorkersContainer{
		Sync:    syncWorker,
		Monitor: queueMonitor,
	}
}
