// Package engine turns noisy, bursty GPS fixes into monotonic distance,
// bounded speed and a trip lifecycle. One Engine instance owns exactly
// one trip; nothing here is shared between trips.
package engine

import (
	"log"
	"sync"
	"time"

	"boston-tracker/internal/shared/geo"
)

// Rejection reasons reported by Process. Filtering decisions are not
// errors: the caller keeps feeding fixes either way.
const (
	ReasonNotActive   = "trip not active"
	ReasonInvalid     = "invalid sample"
	ReasonAtRest      = "at rest"
	ReasonMinDistance = "below minimum distance"
	ReasonStaleClock  = "non-monotonic timestamp"
	ReasonOutlier     = "speed outlier"
	ReasonDrift       = "low-speed drift"
)

// Result tells the caller what happened to one fix.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Snapshot is the complete current metrics state, sent wholesale to the
// server rather than as a delta.
type Snapshot struct {
	TripID          string     `json:"trip_id"`
	CourierID       string     `json:"courier_id"`
	Status          Status     `json:"status"`
	CurrentSpeedKmh float64    `json:"current_speed_kmh"`
	AverageSpeedKmh float64    `json:"average_speed_kmh"`
	MaxSpeedKmh     float64    `json:"max_speed_kmh"`
	DistanceKm      float64    `json:"distance_km"`
	ElapsedSeconds  int64      `json:"elapsed_seconds"`
	SampleCount     int        `json:"sample_count"`
	LastLocation    *RawSample `json:"last_location,omitempty"`
	LastUpdate      time.Time  `json:"last_update"`
}

// Summary is the finalized result of a stopped trip.
type Summary struct {
	TripID               string    `json:"trip_id"`
	EndTime              time.Time `json:"end_time"`
	FinalDistanceKm      float64   `json:"final_distance_km"`
	FinalDurationSeconds int64     `json:"final_duration_seconds"`
	AverageSpeedKmh      float64   `json:"average_speed_kmh"`
	MaxSpeedKmh          float64   `json:"max_speed_kmh"`
}

// Engine is the per-trip metrics pipeline: validate, rest-filter,
// accumulate, watch for inactivity. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	tripID    string
	courierID string
	cfg       Config
	onAlert   AlertFunc

	status    Status
	startTime time.Time
	endTime   time.Time

	validate validator
	rest     *restFilter
	smooth   *smoother
	acc      *accumulator
	idle     inactivityMonitor

	lastAccepted *Sample
	samples      []Sample
	sampleCount  int
	lastUpdate   time.Time
	outliers     int

	summary *Summary
}

// New builds an engine for one trip. onAlert may be nil.
func New(tripID, courierID string, cfg Config, onAlert AlertFunc) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		tripID:    tripID,
		courierID: courierID,
		cfg:       cfg,
		onAlert:   onAlert,
		status:    StatusNotStarted,
		validate:  validator{accuracyCeilingM: cfg.AccuracyCeilingM},
		rest:      newRestFilter(cfg.RestWindow, cfg.RestZoneRadiusM, cfg.StillnessRadiusM),
		acc:       newAccumulator(cfg.SpeedWindow),
		idle:      inactivityMonitor{threshold: cfg.InactivityThreshold},
	}
	if cfg.Smoothing {
		e.smooth = newSmoother()
	}
	return e
}

func (e *Engine) TripID() string    { return e.tripID }
func (e *Engine) CourierID() string { return e.courierID }

// SetAlertFunc installs the alert callback after construction, for
// callers that wire the engine and its sink to each other.
func (e *Engine) SetAlertFunc(fn AlertFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = fn
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start moves the trip to Active and stamps the start time.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransition(StatusActive) || e.status != StatusNotStarted {
		return ErrInvalidTransition
	}
	e.status = StatusActive
	e.startTime = e.cfg.Clock()
	e.lastUpdate = e.startTime
	return nil
}

// Pause keeps the trip's metrics but suppresses sample processing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransition(StatusPaused) {
		return ErrInvalidTransition
	}
	e.status = StatusPaused
	return nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPaused {
		return ErrInvalidTransition
	}
	e.status = StatusActive
	return nil
}

// Stop finalizes the trip and clears all working buffers. Stopping an
// already completed trip is a no-op returning the same Summary, so a
// local stop racing a remote stop cannot double-finalize.
func (e *Engine) Stop() (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusCompleted {
		return *e.summary, nil
	}
	if !e.status.CanTransition(StatusCompleted) {
		return Summary{}, ErrInvalidTransition
	}

	e.status = StatusCompleted
	e.endTime = e.cfg.Clock()

	duration := e.endTime.Sub(e.startTime)
	avg := 0.0
	if duration > 0 {
		avg = e.acc.distanceKm / duration.Hours()
	}
	e.summary = &Summary{
		TripID:               e.tripID,
		EndTime:              e.endTime,
		FinalDistanceKm:      e.acc.distanceKm,
		FinalDurationSeconds: int64(duration.Seconds()),
		AverageSpeedKmh:      avg,
		MaxSpeedKmh:          e.acc.maxSpeedKmh,
	}

	// The final snapshot still reports totals and the last known
	// location; only the working buffers go away.
	e.rest.clear()
	e.acc.clear()
	e.idle.reset()
	e.samples = nil

	return *e.summary, nil
}

// Process runs one fix through the pipeline. Rejections are filtering
// decisions, not failures.
func (e *Engine) Process(raw RawSample) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusActive {
		return Result{Reason: ReasonNotActive}
	}
	if !e.validate.valid(raw) {
		return Result{Reason: ReasonInvalid}
	}
	if raw.Timestamp.IsZero() {
		raw.Timestamp = e.cfg.Clock()
	}
	if e.smooth != nil {
		raw.Lat, raw.Lon = e.smooth.apply(raw.Lat, raw.Lon)
	}

	e.rest.absorb(raw.Lat, raw.Lon)

	// First fix of the trip has nothing to diff against, but it still
	// seeds the rest window so a courier parked from the start is
	// recognized as soon as the cluster fills.
	if e.lastAccepted == nil {
		return e.accept(raw, 0, 0)
	}

	if e.rest.atRest() {
		return e.restResult(raw, ReasonAtRest)
	}

	distKm := geo.HaversineKm(e.lastAccepted.Lat, e.lastAccepted.Lon, raw.Lat, raw.Lon)
	if distKm*1000 < e.cfg.MinValidDistanceM {
		return e.restResult(raw, ReasonMinDistance)
	}

	elapsed := raw.Timestamp.Sub(e.lastAccepted.Timestamp)
	if elapsed <= 0 {
		return Result{Reason: ReasonStaleClock}
	}

	speedKmh := distKm / elapsed.Hours()
	if speedKmh > e.cfg.MaxReasonableSpeedKmh {
		// One bad fix must not poison the next diff: keep the previous
		// accepted location as the reference point.
		e.outliers++
		log.Printf("engine: trip %s rejected impossible speed %.1f km/h", e.tripID, speedKmh)
		return Result{Reason: ReasonOutlier}
	}

	if speedKmh < e.cfg.MinSpeedThresholdKmh && distKm*1000 < e.cfg.MinValidDistanceM {
		return e.restResult(raw, ReasonDrift)
	}

	return e.accept(raw, distKm, speedKmh)
}

func (e *Engine) accept(raw RawSample, distKm, speedKmh float64) Result {
	e.acc.record(distKm, speedKmh)
	e.idle.reset()

	s := Sample{
		RawSample:              raw,
		DistanceFromPreviousKm: distKm,
		InstantSpeedKmh:        speedKmh,
		CumulativeDistanceKm:   e.acc.distanceKm,
	}
	e.samples = append(e.samples, s)
	e.sampleCount++
	e.lastAccepted = &s
	e.lastUpdate = raw.Timestamp
	return Result{Accepted: true}
}

// restResult advances the inactivity episode and fires the one-shot
// alert when the episode outlasts the threshold.
func (e *Engine) restResult(raw RawSample, reason string) Result {
	minutes, fire := e.idle.observeRest(raw.Timestamp)
	if fire && e.onAlert != nil {
		var last *RawSample
		if e.lastAccepted != nil {
			loc := e.lastAccepted.RawSample
			last = &loc
		}
		e.onAlert(Alert{
			TripID:          e.tripID,
			CourierID:       e.courierID,
			InactiveMinutes: minutes,
			Severity:        SeverityFor(minutes),
			LastLocation:    last,
			Timestamp:       raw.Timestamp,
		})
	}
	return Result{Reason: reason}
}

// Snapshot returns the complete current metrics state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	end := e.cfg.Clock()
	if e.status == StatusCompleted {
		end = e.endTime
	}
	elapsed := int64(0)
	if !e.startTime.IsZero() {
		elapsed = int64(end.Sub(e.startTime).Seconds())
	}

	snap := Snapshot{
		TripID:          e.tripID,
		CourierID:       e.courierID,
		Status:          e.status,
		CurrentSpeedKmh: e.acc.currentSpeedKmh,
		AverageSpeedKmh: e.acc.averageSpeedKmh,
		MaxSpeedKmh:     e.acc.maxSpeedKmh,
		DistanceKm:      e.acc.distanceKm,
		ElapsedSeconds:  elapsed,
		SampleCount:     e.sampleCount,
		LastUpdate:      e.lastUpdate,
	}
	if e.lastAccepted != nil {
		loc := e.lastAccepted.RawSample
		snap.LastLocation = &loc
	}
	return snap
}

// Samples returns a copy of the accepted, enriched sample log. The log
// is append-only while the trip runs and is released on stop.
func (e *Engine) Samples() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

// InvalidSamples returns the debug counter of fixes dropped by the
// validator.
func (e *Engine) InvalidSamples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validate.rejected
}
