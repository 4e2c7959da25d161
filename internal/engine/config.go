package engine

import "time"

// Config carries the filtering and accumulation thresholds for one trip
// engine. Zero values are replaced by the defaults below, so a partially
// filled Config is safe to use.
type Config struct {
	// AccuracyCeilingM rejects fixes whose reported GPS error exceeds
	// this many meters. Deliberately stricter than the usual consumer
	// noise floor to keep drift out of the mileage.
	AccuracyCeilingM float64

	// RestWindow is how many recent fixes the rest-zone detector keeps.
	RestWindow int

	// RestZoneRadiusM is the centroid-test radius: the courier counts as
	// parked when at least 80% of the window sits inside it.
	RestZoneRadiusM float64

	// StillnessRadiusM is the tighter radius applied pairwise to the last
	// three fixes only.
	StillnessRadiusM float64

	// MinValidDistanceM is the smallest increment that counts as real
	// movement. Anything shorter is treated as noise.
	MinValidDistanceM float64

	// MaxReasonableSpeedKmh rejects single-fix teleportation artifacts.
	MaxReasonableSpeedKmh float64

	// MinSpeedThresholdKmh feeds the combined low-speed/low-distance
	// drift veto.
	MinSpeedThresholdKmh float64

	// SpeedWindow is the rolling window used for the moving average speed.
	SpeedWindow int

	// InactivityThreshold is how long a courier may stay at rest before a
	// one-shot alert fires.
	InactivityThreshold time.Duration

	// Smoothing enables the recursive coordinate smoother. Off by
	// default: it reduces jitter at the cost of a little latency.
	Smoothing bool

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		AccuracyCeilingM:      15,
		RestWindow:            12,
		RestZoneRadiusM:       10,
		StillnessRadiusM:      5,
		MinValidDistanceM:     8,
		MaxReasonableSpeedKmh: 120,
		MinSpeedThresholdKmh:  3,
		SpeedWindow:           10,
		InactivityThreshold:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AccuracyCeilingM <= 0 {
		c.AccuracyCeilingM = def.AccuracyCeilingM
	}
	if c.RestWindow <= 0 {
		c.RestWindow = def.RestWindow
	}
	if c.RestZoneRadiusM <= 0 {
		c.RestZoneRadiusM = def.RestZoneRadiusM
	}
	if c.StillnessRadiusM <= 0 {
		c.StillnessRadiusM = def.StillnessRadiusM
	}
	if c.MinValidDistanceM <= 0 {
		c.MinValidDistanceM = def.MinValidDistanceM
	}
	if c.MaxReasonableSpeedKmh <= 0 {
		c.MaxReasonableSpeedKmh = def.MaxReasonableSpeedKmh
	}
	if c.MinSpeedThresholdKmh <= 0 {
		c.MinSpeedThresholdKmh = def.MinSpeedThresholdKmh
	}
	if c.SpeedWindow <= 0 {
		c.SpeedWindow = def.SpeedWindow
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = def.InactivityThreshold
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
