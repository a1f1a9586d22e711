package api

import (
	"fmt"

	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/config"
	"lotusflow/studiosync/internal/connectivity"
	"lotusflow/studiosync/internal/db"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/providers"
	"lotusflow/studiosync/internal/services"
	"lotusflow/studiosync/internal/store"
)

// Dependencies is the explicit wiring context: built once at startup, passed
// to every component constructor. A failure here aborts boot; nothing fails
// on a missing dependency mid-run.
type Dependencies struct {
	Cfg     *config.Config
	DB      *gormlib.DB
	Metrics *metrics.MetricsRegistry

	Queue       *repositories.SyncQueueRepo
	Conflicts   *repositories.ConflictRepo
	Checkpoints *repositories.CheckpointRepo

	Store    *store.EntityStore
	Monitor  *connectivity.Monitor
	Provider providers.RemoteProvider
	Resolver *services.ConflictResolver
	Engine   *services.SyncEngine
}

// BuildDependencies constructs the full graph or fails
func BuildDependencies(cfg *config.Config, reg *metrics.MetricsRegistry) (*Dependencies, error) {
	gdb, err := db.InitORM(cfg.StoreDriver, cfg.SQLitePath, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	queue := repositories.NewSyncQueueRepo(gdb)
	conflicts := repositories.NewConflictRepo(gdb)
	checkpoints := repositories.NewCheckpointRepo(gdb)

	tracker := store.NewChangeTracker(queue, reg)
	entityStore := store.NewEntityStore(gdb, tracker, queue)

	monitor := connectivity.NewMonitor(cfg.ProbeURL, cfg.ProbeInterval, cfg.ProbeTimeout, reg)
	provider := providers.NewHTTPProvider(cfg.RemoteBaseURL, cfg.DeviceID, cfg.JWTSecret, cfg.PushTimeout)
	resolver := services.NewConflictResolver(services.StrategyLastWriteWins)

	engine := services.NewSyncEngine(
		entityStore,
		queue,
		conflicts,
		checkpoints,
		provider,
		monitor,
		resolver,
		reg,
		cfg.BatchSize,
		cfg.RetryCeiling,
		connectivity.ParseQuality(cfg.MinQuality),
	)

	return &Dependencies{
		Cfg:         cfg,
		DB:          gdb,
		Metrics:     reg,
		Queue:       queue,
		Conflicts:   conflicts,
		Checkpoints: checkpoints,
		Store:       entityStore,
		Monitor:     monitor,
		Provider:    provider,
		Resolver:    resolver,
		Engine:      engine,
	}, nil
}
