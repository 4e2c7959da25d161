package engine

import "boston-tracker/internal/shared/geo"

// restFilter keeps a short window of recent fixes and decides whether the
// courier is parked rather than moving. Two independent tests: a strict
// pairwise check over the last three fixes, and a centroid test over the
// whole window. The strict check short-circuits the centroid test.
type restFilter struct {
	window       int
	radiusM      float64
	stillRadiusM float64
	points       []point
}

type point struct {
	lat, lon float64
}

func newRestFilter(window int, radiusM, stillRadiusM float64) *restFilter {
	return &restFilter{window: window, radiusM: radiusM, stillRadiusM: stillRadiusM}
}

// absorb records a fix for future rest tests. Every validated fix is
// absorbed, including ones later classified as rest.
func (f *restFilter) absorb(lat, lon float64) {
	f.points = append(f.points, point{lat: lat, lon: lon})
	if len(f.points) > f.window {
		f.points = f.points[1:]
	}
}

func (f *restFilter) atRest() bool {
	return f.completelyStill() || f.inRestZone()
}

// completelyStill reports whether the last three fixes sit pairwise
// within the strict stillness radius.
func (f *restFilter) completelyStill() bool {
	if len(f.points) < 3 {
		return false
	}
	last := f.points[len(f.points)-3:]
	for i := 0; i < len(last); i++ {
		for j := i + 1; j < len(last); j++ {
			if geo.HaversineM(last[i].lat, last[i].lon, last[j].lat, last[j].lon) > f.stillRadiusM {
				return false
			}
		}
	}
	return true
}

// inRestZone reports whether at least 80% of the buffered fixes lie
// within the rest-zone radius of their centroid. Needs five fixes before
// it has enough data to judge.
func (f *restFilter) inRestZone() bool {
	if len(f.points) < 5 {
		return false
	}

	var sumLat, sumLon float64
	for _, p := range f.points {
		sumLat += p.lat
		sumLon += p.lon
	}
	centerLat := sumLat / float64(len(f.points))
	centerLon := sumLon / float64(len(f.points))

	within := 0
	for _, p := range f.points {
		if geo.HaversineM(centerLat, centerLon, p.lat, p.lon) <= f.radiusM {
			within++
		}
	}

	need := (len(f.points)*4 + 4) / 5 // ceil(80%)
	return within >= need
}

func (f *restFilter) clear() {
	f.points = nil
}

// smoother nudges coordinates toward a converging estimate with a simple
// per-axis recursive filter. It is a pure function of (previous estimate,
// new fix, fixed gains), so replaying the same fixes yields the same
// output.
type smoother struct {
	lat, lon         smootherAxis
	processNoise     float64
	measurementNoise float64
	initialized      bool
}

type smootherAxis struct {
	value    float64
	variance float64
}

func newSmoother() *smoother {
	return &smoother{
		lat:              smootherAxis{variance: 1000},
		lon:              smootherAxis{variance: 1000},
		processNoise:     0.01,
		measurementNoise: 1,
	}
}

func (s *smoother) apply(lat, lon float64) (float64, float64) {
	if !s.initialized {
		s.lat.value = lat
		s.lon.value = lon
		s.initialized = true
		return lat, lon
	}
	return s.lat.update(lat, s.processNoise, s.measurementNoise),
		s.lon.update(lon, s.processNoise, s.measurementNoise)
}

func (a *smootherAxis) update(measured, q, r float64) float64 {
	gain := a.variance / (a.variance + r)
	a.value += gain * (measured - a.value)
	a.variance = (1-gain)*a.variance + q
	return a.value
}
