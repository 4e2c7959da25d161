// Command courier drives one simulated courier against the trip API: it
// logs in, starts a trip, feeds GPS fixes through the on-device metrics
// engine and syncs the results until the duration elapses or SIGINT
// arrives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boston-tracker/internal/config"
	"boston-tracker/internal/dispatch"
	"boston-tracker/internal/engine"
	"boston-tracker/internal/trip"
)

// Downtown Boston, where the fleet operates.
var depot = engine.RawSample{Lat: 42.3601, Lon: -71.0589}

func main() {
	var (
		server     = flag.String("server", "http://localhost:8080", "trip API base URL")
		employeeID = flag.String("employee", "", "employee id to log in with")
		courierID  = flag.String("courier", "", "courier id to start the trip for, defaults to the logged-in user")
		password   = flag.String("password", "", "password for the employee")
		token      = flag.String("token", "", "bearer token, skips login")
		interval   = flag.Duration("interval", 3*time.Second, "GPS fix cadence")
		duration   = flag.Duration("duration", 0, "how long to drive, 0 means until interrupted")
		seed       = flag.Int64("seed", 0, "random seed, 0 picks one")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	if *token == "" {
		if *employeeID == "" || *password == "" {
			log.Fatal("either -token or -employee and -password are required")
		}
		tok, userID, err := login(*server, *employeeID, *password)
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
		*token = tok
		if *courierID == "" {
			*courierID = userID
		}
	}
	if *courierID == "" {
		log.Fatal("-courier is required when logging in with -token")
	}

	if err := drive(*server, *token, *courierID, *interval, *duration, rng); err != nil {
		log.Fatalf("courier run failed: %v", err)
	}
}

func login(server, employeeID, password string) (string, string, error) {
	body, _ := json.Marshal(map[string]string{
		"employee_id": employeeID,
		"password":    password,
	})
	resp, err := http.Post(server+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var parsed struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", err
	}
	return parsed.Tokens.AccessToken, parsed.User.ID, nil
}

func drive(server, token, courierID string, interval, duration time.Duration, rng *rand.Rand) error {
	cfg := config.Load()
	pusher := dispatch.NewHTTPPusher(server, token)

	started, err := startTrip(server, token, courierID)
	if err != nil {
		return fmt.Errorf("start trip: %w", err)
	}
	log.Printf("courier: trip %s started", started.ID)

	eng := engine.New(started.ID, started.CourierID, cfg.Engine(), nil)
	d := dispatch.New(eng, pusher, cfg.SyncInterval)
	eng.SetAlertFunc(d.Alert)
	if err := eng.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if duration > 0 {
		deadline = time.After(duration)
	}

	route := newRoute(depot, rng)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-signals:
			log.Printf("courier: interrupted, stopping trip")
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			fix := route.next(interval)
			res := eng.Process(fix)
			if !res.Accepted {
				log.Printf("courier: fix rejected: %s", res.Reason)
			}
			if err := pusher.PushSample(ctx, started.ID, fix); err != nil {
				log.Printf("courier: sample push failed: %v", err)
			}
			if eng.Status() == engine.StatusCompleted {
				// stopped remotely by a supervisor
				break loop
			}
		}
	}

	// Shutdown order matters: stop sampling, stop the sync loop, finish
	// the engine, then flush the final state before telling the server.
	ticker.Stop()
	cancel()
	if _, err := eng.Stop(); err != nil && eng.Status() != engine.StatusCompleted {
		return err
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	if err := d.Flush(flushCtx); err != nil {
		log.Printf("courier: final sync failed: %v", err)
	}

	summary, err := stopTrip(server, token, started.ID)
	if err != nil {
		return fmt.Errorf("stop trip: %w", err)
	}
	log.Printf("courier: trip %s done, %.2f km in %ds",
		summary.TripID, summary.FinalDistanceKm, summary.FinalDurationSeconds)
	return nil
}

func startTrip(server, token, courierID string) (trip.Trip, error) {
	body, _ := json.Marshal(trip.StartRequest{
		CourierID:     courierID,
		StartLocation: &engine.RawSample{Lat: depot.Lat, Lon: depot.Lon, AccuracyM: 5, Timestamp: time.Now()},
	})
	req, err := http.NewRequest(http.MethodPost, server+"/trips/start", bytes.NewReader(body))
	if err != nil {
		return trip.Trip{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return trip.Trip{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return trip.Trip{}, fmt.Errorf("start returned status %d", resp.StatusCode)
	}

	var t trip.Trip
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return trip.Trip{}, err
	}
	return t, nil
}

func stopTrip(server, token, tripID string) (engine.Summary, error) {
	body, _ := json.Marshal(trip.StopRequest{InitiatedBy: "courier"})
	req, err := http.NewRequest(http.MethodPost, server+"/trips/"+tripID+"/stop", bytes.NewReader(body))
	if err != nil {
		return engine.Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return engine.Summary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.Summary{}, fmt.Errorf("stop returned status %d", resp.StatusCode)
	}

	var summary engine.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return engine.Summary{}, err
	}
	return summary, nil
}

// route is a biased random walk: mostly straight segments at city speeds
// with occasional stops, which exercises both the distance accrual and
// the rest filter.
type route struct {
	rng      *rand.Rand
	pos      engine.RawSample
	bearing  float64 // radians
	speedKmh float64
	parked   int // ticks left standing still
}

func newRoute(start engine.RawSample, rng *rand.Rand) *route {
	return &route{
		rng:      rng,
		pos:      start,
		bearing:  rng.Float64() * 2 * math.Pi,
		speedKmh: 20 + rng.Float64()*20,
	}
}

func (r *route) next(interval time.Duration) engine.RawSample {
	if r.parked > 0 {
		r.parked--
		return r.jittered(1.5)
	}
	// occasionally pull over for a few minutes
	if r.rng.Float64() < 0.01 {
		r.parked = int((2 * time.Minute) / interval)
		return r.jittered(1.5)
	}

	r.speedKmh += (r.rng.Float64()*2 - 1) * 3
	if r.speedKmh < 10 {
		r.speedKmh = 10
	}
	if r.speedKmh > 60 {
		r.speedKmh = 60
	}
	r.bearing += (r.rng.Float64()*2 - 1) * 0.3

	stepM := r.speedKmh / 3.6 * interval.Seconds()
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(r.pos.Lat*math.Pi/180)
	r.pos.Lat += stepM * math.Cos(r.bearing) / latMetersPerDeg
	r.pos.Lon += stepM * math.Sin(r.bearing) / lonMetersPerDeg
	return r.jittered(3)
}

// jittered adds GPS noise around the true position.
func (r *route) jittered(noiseM float64) engine.RawSample {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(r.pos.Lat*math.Pi/180)
	return engine.RawSample{
		Lat:       r.pos.Lat + (r.rng.Float64()*2-1)*noiseM/latMetersPerDeg,
		Lon:       r.pos.Lon + (r.rng.Float64()*2-1)*noiseM/lonMetersPerDeg,
		AccuracyM: 3 + r.rng.Float64()*8,
		Timestamp: time.Now(),
	}
}
