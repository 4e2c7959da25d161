package engine

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFor escalates with how long the courier has been immobile.
func SeverityFor(inactiveMinutes int) Severity {
	switch {
	case inactiveMinutes >= 10:
		return SeverityHigh
	case inactiveMinutes >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert is emitted once per rest episode that outlasts the inactivity
// threshold.
type Alert struct {
	TripID          string     `json:"trip_id"`
	CourierID       string     `json:"courier_id"`
	InactiveMinutes int        `json:"inactive_minutes"`
	Severity        Severity   `json:"severity"`
	LastLocation    *RawSample `json:"last_location,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// AlertFunc receives inactivity alerts. A nil AlertFunc drops them.
type AlertFunc func(Alert)

// inactivityMonitor tracks one continuous rest episode. The episode is
// ephemeral: verified movement wipes it entirely.
type inactivityMonitor struct {
	threshold    time.Duration
	episodeStart time.Time
	alertSent    bool
}

// observeRest advances the current episode and reports (inactive minutes,
// whether the one-shot alert should fire now).
func (m *inactivityMonitor) observeRest(now time.Time) (int, bool) {
	if m.episodeStart.IsZero() {
		m.episodeStart = now
		return 0, false
	}
	inactive := now.Sub(m.episodeStart)
	minutes := int(inactive / time.Minute)
	if inactive >= m.threshold && !m.alertSent {
		m.alertSent = true
		return minutes, true
	}
	return minutes, false
}

func (m *inactivityMonitor) reset() {
	m.episodeStart = time.Time{}
	m.alertSent = false
}
