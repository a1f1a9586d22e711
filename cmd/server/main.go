package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lotusflow/studiosync/internal/api"
	"lotusflow/studiosync/internal/config"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/routes"
	"lotusflow/studiosync/internal/workers"
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

	logging.Info("StudioSync device core starting up",
		"environment", cfg.AppEnv,
		"device", cfg.DeviceID,
		"store", cfg.StoreDriver,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	reg := metrics.NewMetricsRegistry()

	deps, err := api.BuildDependencies(cfg, reg)
	if err != nil {
		logging.Error("Failed to build dependencies", "error", err.Error())
		log.Fatalf("❌ Failed to build dependencies: %v", err)
	}
	logging.Info("Local store opened and migrated", "driver", cfg.StoreDriver)

	// Ops stranded in "syncing" by a crash go back to pending before
	// anything else runs
	if err := deps.Engine.Recover(context.Background()); err != nil {
		logging.Error("Failed to recover in-flight operations", "error", err.Error())
		log.Fatalf("❌ Failed to recover in-flight operations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers.InitWorkers(ctx, deps.Engine, deps.Monitor, deps.Queue, deps.Store, reg, cfg.SyncInterval)
	logging.Info("Background workers started", "syncInterval", cfg.SyncInterval.String())

	upSince := time.Now()
	router := routes.RegisterRoutes(deps, upSince)

	// Metrics endpoint outside the chi router
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	logging.Info("Server starting", "addr", cfg.HTTPAddr, "environment", cfg.AppEnv)
	log.Printf("Starting server on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, mux))
}
