package workers

import (
	"context"
	"time"

	"lotusflow/studiosync/internal/connectivity"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/services"
)

// SyncWorker drives the sync engine: a cycle on every interval tick, plus an
// immediate cycle whenever connectivity comes back at usable quality. Policy
// lives here; the monitor only observes.
type SyncWorker struct {
	engine   *services.SyncEngine
	monitor  *connectivity.Monitor
	interval time.Duration
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(engine *services.SyncEngine, monitor *connectivity.Monitor, interval time.Duration) *SyncWorker {
	return &SyncWorker{engine: engine, monitor: monitor, interval: interval}
}

// Start runs until the context is cancelled
func (w *SyncWorker) Start(ctx context.Context) {
	logging.Info("Sync worker starting", "interval", w.interval.String())

	states := w.monitor.Subscribe()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Sync worker stopping")
			return

		case st := <-states:
			if st.Online {
				w.run(ctx)
			}

		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *SyncWorker) run(ctx context.Context) {
	if err := w.engine.RunOnce(ctx, false); err != nil {
		logging.Warn("Sync cycle ended with error", "error", err.Error())
	}
}
