package engine

import "errors"

// Status is the trip lifecycle state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

var ErrInvalidTransition = errors.New("invalid trip state transition")

var transitions = map[Status][]Status{
	StatusNotStarted: {StatusActive},
	StatusActive:     {StatusPaused, StatusCompleted},
	StatusPaused:     {StatusActive, StatusCompleted},
	StatusCompleted:  {},
}

// CanTransition reports whether the lifecycle graph allows s -> to.
// Completed is terminal.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
