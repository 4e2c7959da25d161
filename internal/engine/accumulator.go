package engine

// accumulator owns the running distance and speed figures. Distance only
// ever grows, and only by increments the caller already filtered.
type accumulator struct {
	speedWindow int

	distanceKm      float64
	currentSpeedKmh float64
	averageSpeedKmh float64
	maxSpeedKmh     float64
	speeds          []float64
}

func newAccumulator(speedWindow int) *accumulator {
	return &accumulator{speedWindow: speedWindow}
}

func (a *accumulator) record(distanceKm, speedKmh float64) {
	if speedKmh < 0 {
		speedKmh = 0
	}
	a.distanceKm += distanceKm
	a.currentSpeedKmh = speedKmh
	if speedKmh > a.maxSpeedKmh {
		a.maxSpeedKmh = speedKmh
	}

	a.speeds = append(a.speeds, speedKmh)
	if len(a.speeds) > a.speedWindow {
		a.speeds = a.speeds[1:]
	}
	var sum float64
	for _, s := range a.speeds {
		sum += s
	}
	a.averageSpeedKmh = sum / float64(len(a.speeds))
}

func (a *accumulator) clear() {
	a.speeds = nil
	a.currentSpeedKmh = 0
}
