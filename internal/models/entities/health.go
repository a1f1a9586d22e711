package entities

import "time"

// ServiceStatus describes one dependency in the health check response
type ServiceStatus struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the full health check payload
type HealthResponse struct {
	Status    string                   `json:"status"`
	UpSince   time.Time                `json:"up_since"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceStatus `json:"services"`
	Timestamp time.Time                `json:"timestamp"`
}
