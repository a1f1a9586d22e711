package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"lotusflow/studiosync/internal/backend"
	"lotusflow/studiosync/internal/config"
	"lotusflow/studiosync/internal/logging"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("StudioSync backend starting up",
		"environment", cfg.AppEnv,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	store, err := backend.NewStore(cfg.BackendPostgresDSN)
	if err != nil {
		logging.Error("Failed to connect to Postgres", "error", err.Error())
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}
	logging.Info("Connected to Postgres")

	cache := backend.NewPullCache(cfg.RedisAddr)
	if cache != nil {
		logging.Info("Pull cache enabled", "addr", cfg.RedisAddr)
	}

	srv := backend.NewServer(store, cache)
	router := srv.Router(cfg.JWTSecret)

	addr := cfg.HTTPAddr
	if v := os.Getenv("BACKEND_HTTP_ADDR"); v != "" {
		addr = v
	}

	logging.Info("Backend listening", "addr", addr)
	log.Printf("Starting backend on %s", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}
