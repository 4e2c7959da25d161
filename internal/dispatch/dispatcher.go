// Package dispatch pushes engine state to the backend on a fixed cadence.
//
// The engine itself never talks to the network. A Dispatcher owns that
// boundary: it snapshots the engine every interval and hands the snapshot
// to a Pusher. Failed pushes are logged and retried on the next tick, so
// a flaky connection costs staleness, never engine state.
package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"boston-tracker/internal/engine"
)

// ErrRemoteStopped means the backend reports the trip as already
// completed, typically because a supervisor stopped it.
var ErrRemoteStopped = errors.New("trip stopped remotely")

// Pusher delivers engine output to the backend.
type Pusher interface {
	PushSnapshot(ctx context.Context, snap engine.Snapshot) error
	PushAlert(ctx context.Context, alert engine.Alert) error
}

// NullPusher discards everything. Useful for dry runs and tests.
type NullPusher struct{}

func (NullPusher) PushSnapshot(context.Context, engine.Snapshot) error { return nil }
func (NullPusher) PushAlert(context.Context, engine.Alert) error      { return nil }

// Dispatcher periodically syncs one engine through one pusher.
type Dispatcher struct {
	eng      *engine.Engine
	pusher   Pusher
	interval time.Duration
}

func New(eng *engine.Engine, pusher Pusher, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Dispatcher{eng: eng, pusher: pusher, interval: interval}
}

// Run pushes a snapshot immediately, then on every tick until ctx is
// cancelled. It blocks, so run it in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	d.push(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.push(ctx)
		}
	}
}

// Flush performs one synchronous push, reporting the error to the caller.
// Used for the final sync after the trip stops.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.pusher.PushSnapshot(ctx, d.eng.Snapshot())
}

// Alert forwards an inactivity alert through the pusher. Wire this as the
// engine's alert callback.
func (d *Dispatcher) Alert(alert engine.Alert) {
	if err := d.pusher.PushAlert(context.Background(), alert); err != nil {
		log.Printf("dispatch: trip %s alert push failed: %v", alert.TripID, err)
	}
}

func (d *Dispatcher) push(ctx context.Context) {
	snap := d.eng.Snapshot()
	err := d.pusher.PushSnapshot(ctx, snap)
	switch {
	case err == nil:
	case errors.Is(err, ErrRemoteStopped):
		// A supervisor ended the trip server-side. Stop locally too;
		// Stop is idempotent so a concurrent local stop is harmless.
		if _, err := d.eng.Stop(); err != nil {
			log.Printf("dispatch: trip %s remote stop: %v", snap.TripID, err)
		} else {
			log.Printf("dispatch: trip %s stopped remotely", snap.TripID)
		}
	default:
		log.Printf("dispatch: trip %s sync failed, will retry: %v", snap.TripID, err)
	}
}
