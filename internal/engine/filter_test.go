package engine

import "testing"

func TestStillnessNeedsThreePoints(t *testing.T) {
	f := newRestFilter(12, 10, 5)
	f.absorb(10, 10)
	f.absorb(10.000001, 10)
	if f.atRest() {
		t.Fatalf("two points must not classify as rest")
	}
	f.absorb(10, 10.000001)
	if !f.atRest() {
		t.Fatalf("three near-identical points should be completely still")
	}
}

func TestStillnessPairwise(t *testing.T) {
	f := newRestFilter(12, 10, 5)
	// First and third point are ~8 m apart even though consecutive
	// pairs are within 5 m: pairwise check must reject.
	f.absorb(0, 0)
	f.absorb(latStep(4), 0)
	f.absorb(latStep(8), 0)
	if f.completelyStill() {
		t.Fatalf("pairwise distance above radius classified as still")
	}
}

func TestRestZoneCentroid(t *testing.T) {
	f := newRestFilter(12, 10, 5)
	// Five points: four tight around the origin, one 20 m out. 4/5 = 80%
	// within radius satisfies the centroid test.
	f.absorb(0, 0)
	f.absorb(latStep(2), 0)
	f.absorb(latStep(-2), 0)
	f.absorb(latStep(20), 0) // spreads the last three apart too
	f.absorb(latStep(1), 0)
	if !f.inRestZone() {
		t.Fatalf("80%% clustered points should be in the rest zone")
	}
}

func TestRestZoneRejectsSpreadPoints(t *testing.T) {
	f := newRestFilter(12, 10, 5)
	for i := 0; i < 8; i++ {
		f.absorb(latStep(float64(i)*25), 0)
	}
	if f.atRest() {
		t.Fatalf("a moving track classified as rest")
	}
}

func TestRestFilterWindowCap(t *testing.T) {
	f := newRestFilter(4, 10, 5)
	for i := 0; i < 10; i++ {
		f.absorb(latStep(float64(i)*100), 0)
	}
	if len(f.points) != 4 {
		t.Fatalf("window not capped: %d", len(f.points))
	}
	// Only the last four survive, oldest first.
	if f.points[0].lat != latStep(600) {
		t.Fatalf("unexpected oldest point: %v", f.points[0].lat)
	}
}

func TestSmootherConvergesAndReplays(t *testing.T) {
	a, b := newSmoother(), newSmoother()

	fixes := []point{{10, 10}, {10.0001, 10.0001}, {10.0002, 10.0002}, {10.0001, 10.0003}}
	for _, p := range fixes {
		la1, lo1 := a.apply(p.lat, p.lon)
		la2, lo2 := b.apply(p.lat, p.lon)
		if la1 != la2 || lo1 != lo2 {
			t.Fatalf("smoother replay diverged")
		}
	}

	// First fix initializes the estimate exactly.
	c := newSmoother()
	lat, lon := c.apply(10, 20)
	if lat != 10 || lon != 20 {
		t.Fatalf("first fix should pass through: %v %v", lat, lon)
	}
	// Later fixes are nudged, not adopted wholesale.
	lat, _ = c.apply(11, 20)
	if lat <= 10 || lat >= 11 {
		t.Fatalf("expected estimate strictly between old and new, got %v", lat)
	}
}
