package geo

import (
	"math"
	"testing"

	"colorum/internal/model"
)

// Corridor roughly along Taft Avenue, Manila.
var taftPath = []model.GeoPoint{
	{Lat: 14.5995, Lon: 120.9842},
	{Lat: 14.5903, Lon: 120.9829},
	{Lat: 14.5807, Lon: 120.9846},
	{Lat: 14.5648, Lon: 120.9932},
}

func TestCrossTrackDistanceDegenerate(t *testing.T) {
	if _, err := CrossTrackDistance(model.GeoPoint{Lat: 1, Lon: 1}, nil); err != ErrDegeneratePath {
		t.Fatalf("nil path: got %v", err)
	}
	one := []model.GeoPoint{{Lat: 14.6, Lon: 120.98}}
	if _, err := CrossTrackDistance(model.GeoPoint{Lat: 1, Lon: 1}, one); err != ErrDegeneratePath {
		t.Fatalf("single-point path: got %v", err)
	}
}

func TestCrossTrackDistanceOnPath(t *testing.T) {
	// A path vertex is on the path by definition.
	d, err := CrossTrackDistance(taftPath[1], taftPath)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d > 0.001 {
		t.Fatalf("vertex distance: got %v, want ~0", d)
	}
	// Midpoint of the first segment.
	mid := model.GeoPoint{
		Lat: (taftPath[0].Lat + taftPath[1].Lat) / 2,
		Lon: (taftPath[0].Lon + taftPath[1].Lon) / 2,
	}
	d, err = CrossTrackDistance(mid, taftPath)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d > 1 {
		t.Fatalf("midpoint distance: got %vm, want <1m", d)
	}
}

// bruteForce recomputes the minimum over all segments independently of
// CrossTrackDistance's loop.
func bruteForce(p model.GeoPoint, path []model.GeoPoint) float64 {
	origin := path[0]
	px, py := project(origin, p)
	min := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		ax, ay := project(origin, path[i])
		bx, by := project(origin, path[i+1])
		if d := pointSegmentDistance(px, py, ax, ay, bx, by); d < min {
			min = d
		}
	}
	return min
}

func TestCrossTrackDistanceMatchesBruteForce(t *testing.T) {
	probes := []model.GeoPoint{
		{Lat: 14.6010, Lon: 120.9850},
		{Lat: 14.5900, Lon: 120.9700},
		{Lat: 14.5700, Lon: 120.9900},
		{Lat: 14.5500, Lon: 121.0100},
		{Lat: 14.5995, Lon: 120.9842},
	}
	for _, p := range probes {
		got, err := CrossTrackDistance(p, taftPath)
		if err != nil {
			t.Fatalf("evaluate %v: %v", p, err)
		}
		want := bruteForce(p, taftPath)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("probe %v: got %v, brute force %v", p, got, want)
		}
	}
}

func TestEvaluateToleranceMonotonic(t *testing.T) {
	p := model.GeoPoint{Lat: 14.5900, Lon: 120.9870}
	prev := false
	for _, tol := range []float64{1, 10, 100, 500, 1000, 5000, 1e6} {
		_, within, err := Evaluate(p, taftPath, tol)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if prev && !within {
			t.Fatalf("verdict flipped back to outside at tolerance %v", tol)
		}
		prev = within
	}
	if !prev {
		t.Fatal("expected within at 1000km tolerance")
	}
}

func TestEvaluateOffsetPoint(t *testing.T) {
	// Offset the first path point ~150m east; 1 degree of longitude at
	// this latitude is ~107.7km.
	off := model.GeoPoint{Lat: taftPath[0].Lat, Lon: taftPath[0].Lon + 150.0/107740.0}
	d, within, err := Evaluate(off, taftPath, 100)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if within {
		t.Fatalf("150m offset within 100m tolerance, distance %v", d)
	}
	if d < 140 || d > 160 {
		t.Fatalf("offset distance: got %vm, want ~150m", d)
	}
	if _, within, _ = Evaluate(off, taftPath, 200); !within {
		t.Fatal("150m offset should be within 200m tolerance")
	}
}

func TestGreatCircleKm(t *testing.T) {
	manila := model.GeoPoint{Lat: 14.5995, Lon: 120.9842}
	cebu := model.GeoPoint{Lat: 10.3157, Lon: 123.8854}
	d := GreatCircleKm(manila, cebu)
	if d < 550 || d > 600 {
		t.Fatalf("manila-cebu: got %vkm, want ~570km", d)
	}
	if z := GreatCircleKm(manila, manila); z != 0 {
		t.Fatalf("zero distance: got %v", z)
	}
}
