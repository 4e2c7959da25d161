package engine

import "time"

// RawSample is a GPS fix exactly as the device reported it.
type RawSample struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sample is an accepted fix enriched with the metrics derived from it.
type Sample struct {
	RawSample
	DistanceFromPreviousKm float64 `json:"distance_from_previous_km"`
	InstantSpeedKmh        float64 `json:"instant_speed_kmh"`
	CumulativeDistanceKm   float64 `json:"cumulative_distance_km"`
}

// validator drops fixes with impossible coordinates or implausible
// accuracy. Rejections are counted, never surfaced.
type validator struct {
	accuracyCeilingM float64
	rejected         int
}

func (v *validator) valid(s RawSample) bool {
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		v.rejected++
		return false
	}
	if s.AccuracyM > 0 && s.AccuracyM > v.accuracyCeilingM {
		v.rejected++
		return false
	}
	return true
}
