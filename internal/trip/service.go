package trip

import (
	"context"
	"errors"
	"sync"
	"time"

	"boston-tracker/internal/db"
	"boston-tracker/internal/engine"
	"boston-tracker/internal/shared/geo"
	"boston-tracker/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrTripNotFound  = errors.New("trip not found")
	ErrCourierBusy   = errors.New("courier already has an open trip")
	ErrTripCompleted = errors.New("trip already completed")
)

// Config carries the plausibility gates the service applies when it
// accrues distance from raw fixes. They match the courier app's filter
// so both tiers agree on what counts as movement.
type Config struct {
	MinValidDistanceM     float64
	MaxReasonableSpeedKmh float64
}

func DefaultConfig() Config {
	return Config{
		MinValidDistanceM:     8,
		MaxReasonableSpeedKmh: 120,
	}
}

// Service reconciles courier-reported trip state with the database and
// fans changes out through the stream hub. All writes to one trip go
// through a per-trip mutex, so concurrent syncs from the app and stops
// from a supervisor serialize instead of interleaving.
type Service struct {
	db    db.Querier
	hub   *stream.Hub
	cfg   Config
	locks sync.Map
}

func NewService(db db.Querier, hub *stream.Hub, cfg Config) *Service {
	if cfg.MinValidDistanceM <= 0 {
		cfg.MinValidDistanceM = DefaultConfig().MinValidDistanceM
	}
	if cfg.MaxReasonableSpeedKmh <= 0 {
		cfg.MaxReasonableSpeedKmh = DefaultConfig().MaxReasonableSpeedKmh
	}
	return &Service{db: db, hub: hub, cfg: cfg}
}

func (s *Service) lock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// StartTrip opens a trip for a courier. A courier can have at most one
// open trip, so starting while another is active or paused fails with
// ErrCourierBusy.
func (s *Service) StartTrip(ctx context.Context, req StartRequest) (Trip, error) {
	mu := s.lock("courier:" + req.CourierID)
	mu.Lock()
	defer mu.Unlock()

	var open int
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM trips
		WHERE courier_id=$1 AND status IN ('active','paused')
	`, req.CourierID)
	if err := row.Scan(&open); err != nil {
		return Trip{}, err
	}
	if open > 0 {
		return Trip{}, ErrCourierBusy
	}

	t := Trip{
		ID:        uuid.NewString(),
		CourierID: req.CourierID,
		Status:    engine.StatusActive,
	}
	row = s.db.QueryRow(ctx, `
		INSERT INTO trips (id, courier_id, status)
		VALUES ($1,$2,'active')
		RETURNING start_time
	`, t.ID, t.CourierID)
	if err := row.Scan(&t.StartTime); err != nil {
		return Trip{}, err
	}

	if loc := req.StartLocation; loc != nil {
		if loc.Timestamp.IsZero() {
			loc.Timestamp = t.StartTime
		}
		if err := s.appendLocation(ctx, t.ID, *loc); err != nil {
			return Trip{}, err
		}
		_, err := s.db.Exec(ctx, `
			UPDATE trips
			SET last_lat=$2, last_lon=$3, last_accuracy_m=$4, last_update=$5
			WHERE id=$1
		`, t.ID, loc.Lat, loc.Lon, loc.AccuracyM, loc.Timestamp)
		if err != nil {
			return Trip{}, err
		}
		t.LastLocation = loc
		t.LastUpdate = &loc.Timestamp
	}

	s.publish(t.CourierID, stream.Event{Type: stream.EventTripStarted, TripID: t.ID, Payload: t})
	return t, nil
}

// StopTrip completes a trip and returns its summary. Stopping an already
// completed trip returns the stored summary unchanged, so a courier app
// and a supervisor racing to stop the same trip both see one result.
func (s *Service) StopTrip(ctx context.Context, tripID, initiatedBy string) (engine.Summary, error) {
	mu := s.lock(tripID)
	mu.Lock()
	defer mu.Unlock()

	if initiatedBy == "" {
		initiatedBy = "courier"
	}

	t, err := s.getTrip(ctx, tripID)
	if err != nil {
		return engine.Summary{}, err
	}
	if t.Status == engine.StatusCompleted {
		return summaryOf(t), nil
	}

	var endTime time.Time
	row := s.db.QueryRow(ctx, `
		UPDATE trips
		SET status='completed', end_time=NOW()
		WHERE id=$1
		RETURNING end_time
	`, tripID)
	if err := row.Scan(&endTime); err != nil {
		return engine.Summary{}, err
	}

	t.Status = engine.StatusCompleted
	t.EndTime = &endTime
	summary := summaryOf(t)
	s.publish(t.CourierID, stream.Event{
		Type:    stream.EventTripCompleted,
		TripID:  tripID,
		Payload: Completion{Summary: summary, InitiatedBy: initiatedBy},
	})
	return summary, nil
}

// IngestSample appends one raw fix to the trip's location history and
// accrues server-side distance past the same plausibility gates the
// courier app applies. The raw fix is stored even when the accrual
// rejects it, so the history stays complete. The Result tells the
// caller whether the fix counted toward distance and, if not, why.
func (s *Service) IngestSample(ctx context.Context, tripID string, raw engine.RawSample) (engine.Result, error) {
	mu := s.lock(tripID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.getTrip(ctx, tripID)
	if err != nil {
		return engine.Result{}, err
	}
	if t.Status == engine.StatusCompleted {
		return engine.Result{}, ErrTripCompleted
	}
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now()
	}

	if err := s.appendLocation(ctx, tripID, raw); err != nil {
		return engine.Result{}, err
	}

	res := engine.Result{Accepted: true}
	distanceKm := t.DistanceKm
	speedKmh := t.CurrentSpeedKmh
	advance := true
	if t.LastLocation != nil && t.LastUpdate != nil {
		prev := *t.LastLocation
		distM := geo.HaversineM(prev.Lat, prev.Lon, raw.Lat, raw.Lon)
		elapsed := raw.Timestamp.Sub(*t.LastUpdate)
		if elapsed <= 0 {
			advance = false
			res = engine.Result{Reason: engine.ReasonStaleClock}
		} else {
			stepSpeed := (distM / 1000) / elapsed.Hours()
			switch {
			case stepSpeed > s.cfg.MaxReasonableSpeedKmh:
				// implausible jump, keep the previous anchor
				advance = false
				res = engine.Result{Reason: engine.ReasonOutlier}
			case distM < s.cfg.MinValidDistanceM:
				// stationary jitter, anchor moves but distance does not
				speedKmh = 0
				res = engine.Result{Reason: engine.ReasonMinDistance}
			default:
				distanceKm += distM / 1000
				speedKmh = stepSpeed
			}
		}
	}

	if advance {
		_, err = s.db.Exec(ctx, `
			UPDATE trips
			SET distance_km=$2, current_speed_kmh=$3,
			    last_lat=$4, last_lon=$5, last_accuracy_m=$6, last_update=$7
			WHERE id=$1
		`, tripID, distanceKm, speedKmh, raw.Lat, raw.Lon, raw.AccuracyM, raw.Timestamp)
		if err != nil {
			return engine.Result{}, err
		}
	}

	s.publish(t.CourierID, stream.Event{Type: stream.EventLocationUpdate, TripID: tripID, Payload: raw})
	return res, nil
}

// ApplySnapshot overwrites the trip's metric columns with the courier
// app's aggregates. The client is authoritative for these values; the
// stored location history exists to cross-check them later. Returns
// ErrTripCompleted when the trip was stopped server-side, which tells the
// app to stop its local engine.
func (s *Service) ApplySnapshot(ctx context.Context, tripID string, snap engine.Snapshot) error {
	mu := s.lock(tripID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.getTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if t.Status == engine.StatusCompleted {
		return ErrTripCompleted
	}

	status := t.Status
	if snap.Status == engine.StatusActive || snap.Status == engine.StatusPaused {
		status = snap.Status
	}

	if loc := snap.LastLocation; loc != nil {
		_, err = s.db.Exec(ctx, `
			UPDATE trips
			SET status=$2, distance_km=$3, current_speed_kmh=$4, average_speed_kmh=$5,
			    max_speed_kmh=$6, elapsed_seconds=$7, sample_count=$8,
			    last_lat=$9, last_lon=$10, last_accuracy_m=$11, last_update=$12
			WHERE id=$1
		`, tripID, status, snap.DistanceKm, snap.CurrentSpeedKmh, snap.AverageSpeedKmh,
			snap.MaxSpeedKmh, snap.ElapsedSeconds, snap.SampleCount,
			loc.Lat, loc.Lon, loc.AccuracyM, snap.LastUpdate)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE trips
			SET status=$2, distance_km=$3, current_speed_kmh=$4, average_speed_kmh=$5,
			    max_speed_kmh=$6, elapsed_seconds=$7, sample_count=$8
			WHERE id=$1
		`, tripID, status, snap.DistanceKm, snap.CurrentSpeedKmh, snap.AverageSpeedKmh,
			snap.MaxSpeedKmh, snap.ElapsedSeconds, snap.SampleCount)
	}
	if err != nil {
		return err
	}

	s.publish(t.CourierID, stream.Event{Type: stream.EventMetricsUpdate, TripID: tripID, Payload: snap})
	return nil
}

// RecordInactivityAlert relays a courier inactivity alert to dashboards.
// Severity is recomputed server-side so a stale client cannot downgrade
// it. Alerts are transient, nothing is persisted.
func (s *Service) RecordInactivityAlert(ctx context.Context, tripID string, alert engine.Alert) (engine.Alert, error) {
	t, err := s.getTrip(ctx, tripID)
	if err != nil {
		return engine.Alert{}, err
	}
	if t.Status == engine.StatusCompleted {
		return engine.Alert{}, ErrTripCompleted
	}

	alert.TripID = tripID
	alert.CourierID = t.CourierID
	alert.Severity = engine.SeverityFor(alert.InactiveMinutes)
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	s.publish(t.CourierID, stream.Event{Type: stream.EventInactivityAlert, TripID: tripID, Payload: alert})
	return alert, nil
}

// ActiveTrips lists every open trip, newest first.
func (s *Service) ActiveTrips(ctx context.Context) ([]Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status IN ('active','paused')
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (s *Service) GetTrip(ctx context.Context, tripID string) (Trip, error) {
	return s.getTrip(ctx, tripID)
}

// History returns the trip's raw location history in recorded order,
// capped at limit rows (0 means no cap).
func (s *Service) History(ctx context.Context, tripID string, limit int) ([]engine.RawSample, error) {
	if _, err := s.getTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.history(ctx, tripID, limit)
}

func (s *Service) history(ctx context.Context, tripID string, limit int) ([]engine.RawSample, error) {
	q := `
		SELECT lat, lon, accuracy_m, recorded_at
		FROM trip_locations
		WHERE trip_id=$1
		ORDER BY recorded_at
	`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(ctx, q+` LIMIT $2`, tripID, limit)
	} else {
		rows, err = s.db.Query(ctx, q, tripID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []engine.RawSample
	for rows.Next() {
		var sm engine.RawSample
		if err := rows.Scan(&sm.Lat, &sm.Lon, &sm.AccuracyM, &sm.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// RecomputeDistance re-accrues distance over the stored history with the
// same gates used at ingest. The result is the record-of-truth figure to
// hold against the courier-reported distance.
func (s *Service) RecomputeDistance(ctx context.Context, tripID string) (RecomputeResult, error) {
	t, err := s.getTrip(ctx, tripID)
	if err != nil {
		return RecomputeResult{}, err
	}
	history, err := s.history(ctx, tripID, 0)
	if err != nil {
		return RecomputeResult{}, err
	}

	res := RecomputeResult{
		TripID:             tripID,
		ReportedDistanceKm: t.DistanceKm,
		SampleCount:        len(history),
	}
	var prev *engine.RawSample
	for i := range history {
		cur := &history[i]
		if prev == nil {
			prev = cur
			continue
		}
		distM := geo.HaversineM(prev.Lat, prev.Lon, cur.Lat, cur.Lon)
		elapsed := cur.Timestamp.Sub(prev.Timestamp)
		if elapsed <= 0 {
			continue
		}
		stepSpeed := (distM / 1000) / elapsed.Hours()
		if stepSpeed > s.cfg.MaxReasonableSpeedKmh {
			continue
		}
		prev = cur
		if distM < s.cfg.MinValidDistanceM {
			continue
		}
		res.RecomputedKm += distM / 1000
	}
	return res, nil
}

const tripColumns = `id, courier_id, status, start_time, end_time,
		distance_km, current_speed_kmh, average_speed_kmh, max_speed_kmh,
		elapsed_seconds, sample_count, last_lat, last_lon, last_accuracy_m, last_update`

func scanTrip(row pgx.Row) (Trip, error) {
	var (
		t       Trip
		status  string
		lastLat *float64
		lastLon *float64
		lastAcc *float64
		lastUpd *time.Time
	)
	err := row.Scan(&t.ID, &t.CourierID, &status, &t.StartTime, &t.EndTime,
		&t.DistanceKm, &t.CurrentSpeedKmh, &t.AverageSpeedKmh, &t.MaxSpeedKmh,
		&t.ElapsedSeconds, &t.SampleCount, &lastLat, &lastLon, &lastAcc, &lastUpd)
	if err != nil {
		return Trip{}, err
	}
	t.Status = engine.Status(status)
	if lastLat != nil && lastLon != nil {
		loc := engine.RawSample{Lat: *lastLat, Lon: *lastLon}
		if lastAcc != nil {
			loc.AccuracyM = *lastAcc
		}
		if lastUpd != nil {
			loc.Timestamp = *lastUpd
		}
		t.LastLocation = &loc
	}
	t.LastUpdate = lastUpd
	return t, nil
}

func (s *Service) getTrip(ctx context.Context, tripID string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+tripColumns+`
		FROM trips WHERE id=$1
	`, tripID)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trip{}, ErrTripNotFound
	}
	if err != nil {
		return Trip{}, err
	}
	return t, nil
}

func (s *Service) appendLocation(ctx context.Context, tripID string, raw engine.RawSample) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_locations (trip_id, lat, lon, accuracy_m, recorded_at)
		VALUES ($1,$2,$3,$4,$5)
	`, tripID, raw.Lat, raw.Lon, raw.AccuracyM, raw.Timestamp)
	return err
}

func (s *Service) publish(courierID string, ev stream.Event) {
	if s.hub != nil {
		s.hub.PublishTrip(courierID, ev)
	}
}

func summaryOf(t Trip) engine.Summary {
	sum := engine.Summary{
		TripID:          t.ID,
		FinalDistanceKm: t.DistanceKm,
		AverageSpeedKmh: t.AverageSpeedKmh,
		MaxSpeedKmh:     t.MaxSpeedKmh,
	}
	if t.EndTime != nil {
		sum.EndTime = *t.EndTime
		duration := t.EndTime.Sub(t.StartTime)
		sum.FinalDurationSeconds = int64(duration.Seconds())
		if duration > 0 {
			sum.AverageSpeedKmh = t.DistanceKm / duration.Hours()
		}
	}
	return sum
}
