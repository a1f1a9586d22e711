package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lotusflow/studiosync/internal/models/entities"
)

// InitORM opens the local durable store. SQLite is the default driver for a
// single device; Postgres is available for shared-desk deployments.
func InitORM(driver string, sqlitePath string, postgresDSN string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "postgres":
		dialector = postgres.Open(postgresDSN)
	case "sqlite", "":
		dialector = sqlite.Open(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store (%s): %w", driver, err)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	return gdb, nil
}

// Migrate creates or updates every durable table: one per entity type plus
// the sync queue, conflict records and pull checkpoints.
func Migrate(gdb *gorm.DB) error {
	models := []interface{}{
		&entities.SyncOperation{},
		&entities.ConflictRecord{},
		&entities.SyncCheckpoint{},
	}
	for _, proto := range entities.AllPrototypes() {
		models = append(models, proto)
	}

	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}
