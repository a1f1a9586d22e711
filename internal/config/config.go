package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"lotusflow/studiosync/internal/constants"
)

// Config carries every runtime setting, read once at startup. Components
// receive the values they need through constructors; nothing reads the
// environment after boot.
type Config struct {
	AppEnv   string
	HTTPAddr string

	// Local store
	StoreDriver string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresDSN string

	// Remote backend
	RemoteBaseURL string
	JWTSecret     string
	DeviceID      string
	PushTimeout   time.Duration

	// Sync engine
	SyncInterval time.Duration
	BatchSize    int
	RetryCeiling int
	MinQuality   string // minimum connectivity quality to auto-sync

	// Connectivity monitor
	ProbeURL      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// Backend only
	BackendPostgresDSN string
	RedisAddr          string
	RedisPassword      string
}

// Load reads the environment into a Config, applying defaults. It fails if a
// setting is present but unparseable, never mid-run.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:   getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "studiosync.db"),
		RemoteBaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:9090"),
		JWTSecret:     getEnv("SYNC_JWT_SECRET", "dev-secret"),
		DeviceID:      getEnv("DEVICE_ID", "studio-device-1"),
		MinQuality:    getEnv("SYNC_MIN_QUALITY", "good"),
		ProbeURL:      getEnv("PROBE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	host := getEnv("PG_HOST", "localhost")
	port := getEnv("PG_PORT", "5432")
	user := getEnv("PG_USER", "studiosync")
	dbname := getEnv("PG_DB", "studiosync")
	password := getEnv("PG_PASSWORD", "")
	cfg.PostgresDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, dbname)
	cfg.BackendPostgresDSN = getEnv("BACKEND_PG_DSN", cfg.PostgresDSN)

	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.RemoteBaseURL + "/healthCheck"
	}

	var err error
	if cfg.SyncInterval, err = getSeconds("SYNC_INTERVAL_SECONDS", constants.DefaultSyncInterval); err != nil {
		return nil, err
	}
	if cfg.PushTimeout, err = getSeconds("PUSH_TIMEOUT_SECONDS", constants.DefaultPushTimeout); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getSeconds("PROBE_INTERVAL_SECONDS", constants.DefaultProbeInterval); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = getSeconds("PROBE_TIMEOUT_SECONDS", constants.DefaultProbeTimeout); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getInt("SYNC_BATCH_SIZE", constants.DefaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.RetryCeiling, err = getInt("SYNC_RETRY_CEILING", constants.DefaultRetryCeiling); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getSeconds(key string, fallback int) (time.Duration, error) {
	n, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
