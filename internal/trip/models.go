package trip

import (
	"time"

	"boston-tracker/internal/engine"
)

// Trip is the server-side record of one delivery trip. The metric columns
// mirror the courier app's last reported snapshot; the location history
// table keeps every raw fix for auditing.
type Trip struct {
	ID              string            `json:"id"`
	CourierID       string            `json:"courier_id"`
	Status          engine.Status     `json:"status"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	DistanceKm      float64           `json:"distance_km"`
	CurrentSpeedKmh float64           `json:"current_speed_kmh"`
	AverageSpeedKmh float64           `json:"average_speed_kmh"`
	MaxSpeedKmh     float64           `json:"max_speed_kmh"`
	ElapsedSeconds  int64             `json:"elapsed_seconds"`
	SampleCount     int               `json:"sample_count"`
	LastLocation    *engine.RawSample `json:"last_location,omitempty"`
	LastUpdate      *time.Time        `json:"last_update,omitempty"`
}

// StartRequest opens a trip for a courier, optionally seeding the first fix.
type StartRequest struct {
	CourierID     string            `json:"courier_id"`
	StartLocation *engine.RawSample `json:"start_location,omitempty"`
}

// StopRequest records which side ended the trip. An empty body counts
// as a courier stop.
type StopRequest struct {
	InitiatedBy string `json:"initiated_by"`
}

// Completion is the trip-completed broadcast body.
type Completion struct {
	Summary     engine.Summary `json:"summary"`
	InitiatedBy string         `json:"initiated_by"`
}

// RecomputeResult compares the courier-reported distance against a fresh
// accrual over the stored location history.
type RecomputeResult struct {
	TripID             string  `json:"trip_id"`
	ReportedDistanceKm float64 `json:"reported_distance_km"`
	RecomputedKm       float64 `json:"recomputed_distance_km"`
	SampleCount        int     `json:"sample_count"`
}
