package api

import (
	"encoding/json"
	"net/http"
	"time"

	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/connectivity"
	"lotusflow/studiosync/internal/models/entities"
)

// HealthCheckHandler handles GET /healthCheck
func HealthCheckHandler(gdb *gormlib.DB, monitor *connectivity.Monitor, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := make(map[string]entities.ServiceStatus)

		storeStatus := "ok"
		storeDetails := "Local store reachable"
		if sqlDB, err := gdb.DB(); err != nil {
			storeStatus = "down"
			storeDetails = err.Error()
		} else if err := sqlDB.Ping(); err != nil {
			storeStatus = "down"
			storeDetails = err.Error()
		}
		services["local_store"] = entities.ServiceStatus{
			Status:  storeStatus,
			Details: storeDetails,
		}

		// Connectivity is informational: the service is healthy offline,
		// that is the point of an offline-first core
		conn := monitor.Current()
		connStatus := "offline"
		if conn.Online {
			connStatus = "ok"
		}
		services["connectivity"] = entities.ServiceStatus{
			Status:  connStatus,
			Details: conn.Quality.String(),
		}

		overallStatus := "ok"
		if storeStatus != "ok" {
			overallStatus = "down"
		}

		now := time.Now().UTC()
		resp := entities.HealthResponse{
			Status:    overallStatus,
			UpSince:   upSince,
			Uptime:    now.Sub(upSince).Round(time.Second).String(),
			Services:  services,
			Timestamp: now,
		}

		w.Header().Set("Content-Type", "application/json")
		if overallStatus != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
