package api

import "github.com/mattjoyce/uploader/internal/dispatch"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workers       int    `json:"workers"`
	QueueDepth    int64  `json:"queue_depth"`
	InFlight      int64  `json:"in_flight"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Dispatch    dispatch.Stats `json:"dispatch"`
	Targets     int            `json:"targets"`
	Limiters    int            `json:"limiters"`
	Subscribers int            `json:"event_subscribers"`
	Dropped     int64          `json:"events_dropped"`
}

// TargetsResponse is returned by GET /targets.
type TargetsResponse struct {
	Targets []string `json:"targets"`
}
