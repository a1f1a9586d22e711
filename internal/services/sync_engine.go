package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/connectivity"
	"lotusflow/studiosync/internal/constants"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/models/entities"
	"lotusflow/studiosync/internal/providers"
	"lotusflow/studiosync/internal/store"
)

// EngineState names the phase the engine is in
type EngineState string

const (
	EngineIdle     EngineState = "idle"
	EngineDraining EngineState = "draining"
	EnginePulling  EngineState = "pulling"
	EngineApplying EngineState = "applying"
)

// SyncEvent is one entry on the observable error/progress feed. Sync-path
// failures never reach the foreground caller synchronously; they surface
// here and on the entity's sync status.
type SyncEvent struct {
	Event      string    `json:"event"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// SyncEngine reconciles local and remote state: drains the queue outward,
// pulls remote deltas inward, and routes collisions to the resolver. It
// runs as a background task and never blocks the foreground write path.
type SyncEngine struct {
	store       *store.EntityStore
	queue       *repositories.SyncQueueRepo
	conflicts   *repositories.ConflictRepo
	checkpoints *repositories.CheckpointRepo
	provider    providers.RemoteProvider
	monitor     *connectivity.Monitor
	resolver    *ConflictResolver
	metrics     *metrics.MetricsRegistry

	batchSize    int
	retryCeiling int
	minQuality   connectivity.Quality

	mu          sync.Mutex
	running     bool
	state       EngineState
	lastCycleAt *time.Time

	evMu sync.Mutex
	subs []chan SyncEvent
}

// NewSyncEngine wires the engine. RecoverInFlight must run (via Recover)
// before the first cycle after a restart.
func NewSyncEngine(
	st *store.EntityStore,
	queue *repositories.SyncQueueRepo,
	conflicts *repositories.ConflictRepo,
	checkpoints *repositories.CheckpointRepo,
	provider providers.RemoteProvider,
	monitor *connectivity.Monitor,
	resolver *ConflictResolver,
	reg *metrics.MetricsRegistry,
	batchSize int,
	retryCeiling int,
	minQuality connectivity.Quality,
) *SyncEngine {
	return &SyncEngine{
		store:        st,
		queue:        queue,
		conflicts:    conflicts,
		checkpoints:  checkpoints,
		provider:     provider,
		monitor:      monitor,
		resolver:     resolver,
		metrics:      reg,
		batchSize:    batchSize,
		retryCeiling: retryCeiling,
		minQuality:   minQuality,
		state:        EngineIdle,
	}
}

// Recover reverts operations stranded in syncing by a previous process to
// pending. Their network outcome is unknown, so they run again; the backend
// treats replays of an already-applied version as idempotent.
func (e *SyncEngine) Recover(ctx context.Context) error {
	n, err := e.queue.RecoverInFlight(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Warn("Recovered in-flight sync operations after restart", "count", n)
	}
	return nil
}

// RunOnce executes one full cycle: drain, pull, apply. A no-op when offline
// (unless forced), below the minimum quality, or already running.
func (e *SyncEngine) RunOnce(ctx context.Context, force bool) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		now := time.Now().UTC()
		e.mu.Lock()
		e.running = false
		e.state = EngineIdle
		e.lastCycleAt = &now
		e.mu.Unlock()
	}()

	st := e.monitor.Current()
	if !force && (!st.Online || st.Quality < e.minQuality) {
		return nil
	}

	cycle := logging.WithCycle(uuid.NewString(), trigger(force))
	cycleStart := time.Now()

	pushed, err := e.drain(ctx)
	if err != nil {
		cycle.Warnw("Drain stopped early", "pushed", pushed, "error", err.Error())
	} else if pushed > 0 {
		cycle.Infow("Drain complete", "pushed", pushed)
	}

	if err := e.pull(ctx, cycle); err != nil {
		cycle.Warnw("Pull failed", "error", err.Error())
		return err
	}

	if e.metrics != nil {
		e.metrics.SyncCycleDuration.WithLabelValues("cycle").Observe(time.Since(cycleStart).Seconds())
	}
	e.publish(SyncEvent{Event: constants.SyncEventCycleComplete, At: time.Now().UTC()})
	return nil
}

// State returns the engine's current phase and last completed cycle time
func (e *SyncEngine) State() (EngineState, *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.lastCycleAt
}

// Status assembles the full sync status for the API layer
func (e *SyncEngine) Status(ctx context.Context) (*dtos.SyncStatusResponse, error) {
	depth, err := e.queue.Depth(ctx)
	if err != nil {
		return nil, err
	}
	inError, err := e.store.CountInError(ctx)
	if err != nil {
		return nil, err
	}
	open, err := e.conflicts.CountOpen(ctx)
	if err != nil {
		return nil, err
	}

	state, lastCycle := e.State()
	conn := e.monitor.Current()
	return &dtos.SyncStatusResponse{
		EngineState:     string(state),
		QueueDepth:      depth,
		EntitiesInError: inError,
		OpenConflicts:   open,
		Online:          conn.Online,
		Quality:         conn.Quality.String(),
		LastCycleAt:     lastCycle,
	}, nil
}

// Subscribe returns a channel receiving sync events. Slow consumers drop
// events rather than stalling the engine.
func (e *SyncEngine) Subscribe() <-chan SyncEvent {
	ch := make(chan SyncEvent, 16)
	e.evMu.Lock()
	e.subs = append(e.subs, ch)
	e.evMu.Unlock()
	return ch
}

// drain pops batches and pushes them in enqueue order until the queue is
// empty or a transient failure suggests connectivity is gone.
func (e *SyncEngine) drain(ctx context.Context) (int, error) {
	e.setState(EngineDraining)
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.SyncCycleDuration.WithLabelValues("drain").Observe(time.Since(start).Seconds())
		}
	}()

	pushed := 0
	for {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		batch, err := e.queue.DequeueBatch(ctx, e.batchSize)
		if err != nil {
			return pushed, err
		}
		if len(batch) == 0 {
			return pushed, nil
		}

		for i := range batch {
			if err := e.pushOp(ctx, &batch[i]); err != nil {
				// Connectivity is likely gone. The untransmitted remainder of
				// the batch goes back to pending, or it would sit in syncing
				// until the next restart.
				rest := make([]string, 0, len(batch)-i-1)
				for _, op := range batch[i+1:] {
					rest = append(rest, op.ID)
				}
				if relErr := e.queue.Release(ctx, rest); relErr != nil {
					return pushed, relErr
				}
				return pushed, err
			}
			pushed++
		}
	}
}

// pushOp transmits one operation and settles its outcome. A returned error
// means the drain loop should stop; permanent rejections and conflicts are
// settled in place and return nil.
func (e *SyncEngine) pushOp(ctx context.Context, op *entities.SyncOperation) error {
	// The entity mirrors the op while it is in flight. A local edit made
	// meanwhile flips it back to pending through the store's write path.
	if err := e.store.MarkSyncOutcome(ctx, op.EntityType, op.EntityID, entities.SyncStatusSyncing); err != nil {
		return err
	}

	req := dtos.PushRequest{
		ID:            op.EntityID,
		Kind:          string(op.Kind),
		Payload:       op.Payload,
		ClientVersion: op.ClientVersion,
	}

	resp, err := e.provider.Push(ctx, op.EntityType, string(op.Kind), req)
	if err == nil {
		return e.settlePushSuccess(ctx, op, resp)
	}

	var conflict *providers.RemoteConflictError
	var rejection *common.ValidationError

	switch {
	case errors.As(err, &conflict):
		e.countPush(op.EntityType, "conflict")
		local := LocalSnapshot{Payload: op.Payload, Version: op.ClientVersion, UpdatedAt: opUpdatedAt(op)}
		if err := e.resolveCollision(ctx, op.EntityType, op.EntityID, local, conflict.Remote); err != nil {
			return err
		}
		return e.queue.Acknowledge(ctx, op.ID)

	case errors.As(err, &rejection):
		// Permanent: drop the op, flag the entity, keep the local data visible
		e.countPush(op.EntityType, "rejected")
		if err := e.queue.Acknowledge(ctx, op.ID); err != nil {
			return err
		}
		if err := e.store.MarkSyncOutcome(ctx, op.EntityType, op.EntityID, entities.SyncStatusError); err != nil {
			return err
		}
		e.publish(SyncEvent{
			Event:      constants.SyncEventPushRejected,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Error:      rejection.Error(),
			At:         time.Now().UTC(),
		})
		return nil

	default:
		e.countPush(op.EntityType, "requeued")
		exceeded, rqErr := e.queue.Requeue(ctx, op.ID, err, e.retryCeiling)
		if rqErr != nil {
			return rqErr
		}
		if exceeded {
			if mErr := e.store.MarkSyncOutcome(ctx, op.EntityType, op.EntityID, entities.SyncStatusError); mErr != nil {
				return mErr
			}
			e.publish(SyncEvent{
				Event:      constants.SyncEventRetryExhausted,
				EntityType: op.EntityType,
				EntityID:   op.EntityID,
				Error:      err.Error(),
				At:         time.Now().UTC(),
			})
			return nil
		}
		if mErr := e.store.MarkSyncOutcome(ctx, op.EntityType, op.EntityID, entities.SyncStatusPending); mErr != nil {
			return mErr
		}
		e.publish(SyncEvent{
			Event:      constants.SyncEventPushRequeued,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Error:      err.Error(),
			At:         time.Now().UTC(),
		})
		return err
	}
}

func (e *SyncEngine) settlePushSuccess(ctx context.Context, op *entities.SyncOperation, resp *dtos.PushResponse) error {
	if err := e.queue.Acknowledge(ctx, op.ID); err != nil {
		return err
	}
	e.countPush(op.EntityType, "acked")
	if e.metrics != nil {
		e.metrics.OpAttempts.WithLabelValues(op.EntityType).Observe(float64(op.Attempts + 1))
	}

	if op.Kind == entities.OpDelete {
		if err := e.store.PhysicalDelete(ctx, op.EntityType, op.EntityID); err != nil {
			return err
		}
	} else {
		// A local edit made while this push was in flight has layered a new
		// pending op; the entity stays pending until that one lands.
		hasNewer, err := e.queue.HasActiveOp(ctx, op.EntityID)
		if err != nil {
			return err
		}
		if !hasNewer {
			if err := e.store.MarkSyncOutcome(ctx, op.EntityType, op.EntityID, entities.SyncStatusSynced); err != nil {
				return err
			}
		}
	}

	e.publish(SyncEvent{
		Event:      constants.SyncEventPushAcked,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		At:         resp.ServerTimestamp,
	})
	return nil
}

// pull fetches remote deltas per entity type concurrently, then applies each
// type's records in order and advances its checkpoint.
func (e *SyncEngine) pull(ctx context.Context, cycle *zap.SugaredLogger) error {
	e.setState(EnginePulling)
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.SyncCycleDuration.WithLabelValues("pull").Observe(time.Since(start).Seconds())
		}
	}()

	type typedRecords struct {
		entityType string
		records    []dtos.RemoteRecord
	}

	results := make([]typedRecords, len(entities.AllTypes()))
	g, gctx := errgroup.WithContext(ctx)

	for i, entityType := range entities.AllTypes() {
		g.Go(func() error {
			since, err := e.checkpoints.LastPulledAt(gctx, entityType)
			if err != nil {
				return err
			}
			records, err := e.provider.Pull(gctx, entityType, since)
			if err != nil {
				return err
			}
			results[i] = typedRecords{entityType: entityType, records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.setState(EngineApplying)
	for _, tr := range results {
		if len(tr.records) == 0 {
			continue
		}
		var cursor time.Time
		for _, rec := range tr.records {
			if err := e.applyRemoteRecord(ctx, tr.entityType, rec); err != nil {
				return err
			}
			if rec.ServerTimestamp.After(cursor) {
				cursor = rec.ServerTimestamp
			}
		}
		if !cursor.IsZero() {
			if err := e.checkpoints.Advance(ctx, tr.entityType, cursor); err != nil {
				return err
			}
		}
		cycle.Infow("Applied remote records", "entity_type", tr.entityType, "count", len(tr.records))
	}
	return nil
}

// applyRemoteRecord applies one pulled record, routing collisions with local
// pending work to the resolver. A remote version never overwrites a local
// entity with in-flight changes unless the resolver selects it.
func (e *SyncEngine) applyRemoteRecord(ctx context.Context, entityType string, rec dtos.RemoteRecord) error {
	blocked, err := e.conflicts.HasOpenForEntity(ctx, rec.ID)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}

	hasActive, err := e.queue.HasActiveOp(ctx, rec.ID)
	if err != nil {
		return err
	}

	if hasActive {
		local, err := e.store.Get(ctx, entityType, rec.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Local tombstone with a queued delete; the push path settles it
				return nil
			}
			return err
		}
		payload, err := json.Marshal(local)
		if err != nil {
			return fmt.Errorf("failed to snapshot local %s %s: %w", entityType, rec.ID, err)
		}
		meta := local.Meta()
		snapshot := LocalSnapshot{Payload: payload, Version: meta.SyncVersion, UpdatedAt: meta.UpdatedAt}
		return e.resolveCollision(ctx, entityType, rec.ID, snapshot, rec)
	}

	// No local pending change: guard against replaying an older remote state
	local, err := e.store.Get(ctx, entityType, rec.ID)
	if err == nil && local.Meta().SyncVersion > rec.ServerVersion {
		return nil
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if err := e.store.ApplyRemote(ctx, entityType, rec); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.PullsAppliedTotal.WithLabelValues(entityType).Inc()
	}
	e.publish(SyncEvent{
		Event:      constants.SyncEventPullApplied,
		EntityType: entityType,
		EntityID:   rec.ID,
		At:         time.Now().UTC(),
	})
	return nil
}

// resolveCollision adjudicates divergent local/remote state. Manual strategy
// records the conflict and blocks the entity; automatic strategies apply the
// outcome locally and, when local state won, re-enqueue it rebased on the
// remote's version so the backend converges on the next drain.
func (e *SyncEngine) resolveCollision(ctx context.Context, entityType string, entityID string, local LocalSnapshot, remote dtos.RemoteRecord) error {
	outcome, err := e.resolver.Resolve(local, remote)
	if err != nil {
		return err
	}

	if outcome.Delete {
		// The remote's tombstone won: local row and pending work both go
		if err := e.dropPending(ctx, entityID); err != nil {
			return err
		}
		if err := e.store.ApplyRemote(ctx, entityType, remote); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.ConflictsTotal.WithLabelValues(string(e.resolver.Strategy()), outcome.Winner).Inc()
		}
		e.publish(SyncEvent{
			Event:      constants.SyncEventResolved,
			EntityType: entityType,
			EntityID:   entityID,
			At:         time.Now().UTC(),
		})
		return nil
	}

	if outcome.Manual {
		rec := &entities.ConflictRecord{
			EntityType:    entityType,
			EntityID:      entityID,
			LocalPayload:  local.Payload,
			RemotePayload: remote.Payload,
			LocalVersion:  local.Version,
			RemoteVersion: remote.ServerVersion,
			Strategy:      string(StrategyManual),
		}
		if err := e.conflicts.Record(ctx, rec); err != nil {
			return err
		}
		if err := e.dropPending(ctx, entityID); err != nil {
			return err
		}
		if err := e.store.MarkSyncOutcome(ctx, entityType, entityID, entities.SyncStatusConflict); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.ConflictsTotal.WithLabelValues(string(StrategyManual), "pending").Inc()
		}
		e.publish(SyncEvent{
			Event:      constants.SyncEventConflict,
			EntityType: entityType,
			EntityID:   entityID,
			At:         time.Now().UTC(),
		})
		return nil
	}

	if err := e.ApplyResolution(ctx, entityType, entityID, outcome); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ConflictsTotal.WithLabelValues(string(e.resolver.Strategy()), outcome.Winner).Inc()
	}
	e.publish(SyncEvent{
		Event:      constants.SyncEventResolved,
		EntityType: entityType,
		EntityID:   entityID,
		At:         time.Now().UTC(),
	})
	return nil
}

// ApplyResolution writes a resolution outcome into the store and, unless the
// remote version won outright, queues one rebased update so the remote
// receives the result. Also used by the manual-resolution API path.
func (e *SyncEngine) ApplyResolution(ctx context.Context, entityType string, entityID string, outcome *Outcome) error {
	if err := e.store.ApplyResolved(ctx, entityType, entityID, outcome.Payload, outcome.Version); err != nil {
		return err
	}

	if outcome.Winner == "remote" {
		// Remote won outright; any stale pending op for this entity is moot
		return e.dropPending(ctx, entityID)
	}

	// A local or merged result must reach the remote: replace any stale
	// pending op with one carrying the resolved version. That version is
	// strictly past the remote's, so the backend accepts it rather than
	// treating the push as a replay of state it already holds.
	return e.store.DB().WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		if err := e.queue.DropPendingForEntity(tx, entityID); err != nil {
			return err
		}
		return e.queue.Insert(tx, &entities.SyncOperation{
			EntityType:    entityType,
			EntityID:      entityID,
			Kind:          entities.OpUpdate,
			Payload:       outcome.Payload,
			ClientVersion: outcome.Version,
		})
	})
}

// ResolveManual applies a human decision to an open conflict record. The
// chosen snapshot gets a fresh version past both inputs; a local choice is
// re-enqueued so the remote converges.
func (e *SyncEngine) ResolveManual(ctx context.Context, conflictID string, choice string) error {
	rec, err := e.conflicts.FindOpen(ctx, conflictID)
	if err != nil {
		return err
	}
	if rec == nil {
		return common.ErrNotFound
	}

	outcome := &Outcome{
		Version: maxInt64(rec.LocalVersion, rec.RemoteVersion) + 1,
		Winner:  choice,
	}
	switch choice {
	case "local":
		outcome.Payload = rec.LocalPayload
	case "remote":
		outcome.Payload = rec.RemotePayload
	default:
		return &common.ValidationError{Code: "INVALID_CHOICE", Message: constants.MsgInvalidChoice}
	}

	if err := e.ApplyResolution(ctx, rec.EntityType, rec.EntityID, outcome); err != nil {
		return err
	}
	if err := e.conflicts.MarkResolved(ctx, conflictID, choice, outcome.Payload); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ConflictsTotal.WithLabelValues(string(StrategyManual), choice).Inc()
	}
	e.publish(SyncEvent{
		Event:      constants.SyncEventResolved,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		At:         time.Now().UTC(),
	})
	return nil
}

func (e *SyncEngine) dropPending(ctx context.Context, entityID string) error {
	return e.queue.DropPendingForEntity(e.store.DB().WithContext(ctx), entityID)
}

func (e *SyncEngine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *SyncEngine) countPush(entityType string, outcome string) {
	if e.metrics != nil {
		e.metrics.PushesTotal.WithLabelValues(entityType, outcome).Inc()
	}
}

func (e *SyncEngine) publish(ev SyncEvent) {
	e.evMu.Lock()
	subs := e.subs
	e.evMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func trigger(force bool) string {
	if force {
		return "manual"
	}
	return "scheduled"
}

func opUpdatedAt(op *entities.SyncOperation) time.Time {
	var snapshot struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(op.Payload, &snapshot); err == nil && !snapshot.UpdatedAt.IsZero() {
		return snapshot.UpdatedAt
	}
	return op.EnqueuedAt
}
