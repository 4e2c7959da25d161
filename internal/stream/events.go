package stream

import "time"

// EventType tags a broadcast frame so dashboards can route it without
// inspecting the payload.
type EventType string

const (
	EventTripStarted     EventType = "trip-started"
	EventLocationUpdate  EventType = "location-update"
	EventMetricsUpdate   EventType = "metrics-update"
	EventTripCompleted   EventType = "trip-completed"
	EventInactivityAlert EventType = "inactivity-alert"
)

// GroupSupervisors receives every trip event in the fleet. Each courier
// additionally has a private group, see CourierGroup.
const GroupSupervisors = "supervisors"

func CourierGroup(courierID string) string {
	return "courier:" + courierID
}

// Event is the wire frame pushed to websocket subscribers.
type Event struct {
	Type      EventType `json:"type"`
	TripID    string    `json:"trip_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
