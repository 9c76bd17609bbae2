// Package geo implements the distance math behind colorum determination.
//
// Corridor matching uses a planar cross-track distance: coordinates are
// projected onto a local tangent plane anchored at the first path point, and
// the verdict is the minimum Euclidean distance from the device position to
// any path segment, in meters. The outward "vehicles near me" query uses
// great-circle distance in kilometers instead; the two metrics are
// intentionally separate and must not be mixed.
package geo

import (
	"errors"
	"math"

	"colorum/internal/model"
)

// ErrDegeneratePath is returned when a path has fewer than two points and
// therefore no defined distance-to-path.
var ErrDegeneratePath = errors.New("path has fewer than 2 points")

const (
	earthRadiusKm = 6371.0
	// Meters per degree of latitude; longitude degrees are scaled by
	// cos(latitude) at the projection origin.
	metersPerDegree = 111320.0
)

// CrossTrackDistance returns the minimum distance in meters from p to the
// polyline path. The path must contain at least two points.
func CrossTrackDistance(p model.GeoPoint, path []model.GeoPoint) (float64, error) {
	if len(path) < 2 {
		return 0, ErrDegeneratePath
	}
	origin := path[0]
	px, py := project(origin, p)
	min := math.Inf(1)
	ax, ay := project(origin, path[0])
	for i := 1; i < len(path); i++ {
		bx, by := project(origin, path[i])
		if d := pointSegmentDistance(px, py, ax, ay, bx, by); d < min {
			min = d
		}
		ax, ay = bx, by
	}
	return min, nil
}

// Evaluate computes the cross-track distance from p to path and whether it
// falls within maxDistanceM meters. Increasing maxDistanceM can only turn
// the verdict from outside to within, never the reverse.
func Evaluate(p model.GeoPoint, path []model.GeoPoint, maxDistanceM float64) (float64, bool, error) {
	d, err := CrossTrackDistance(p, path)
	if err != nil {
		return 0, false, err
	}
	return d, d <= maxDistanceM, nil
}

// project maps p onto a local tangent plane centered at origin, in meters.
// Adequate for corridor-scale extents; avoids the zone-boundary
// discontinuities of a fixed map projection.
func project(origin, p model.GeoPoint) (x, y float64) {
	latScale := math.Cos(origin.Lat * math.Pi / 180)
	x = (p.Lon - origin.Lon) * metersPerDegree * latScale
	y = (p.Lat - origin.Lat) * metersPerDegree
	return x, y
}

// pointSegmentDistance returns the distance from (px,py) to the segment
// (ax,ay)-(bx,by).
func pointSegmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}

// GreatCircleKm returns the haversine distance between a and b in
// kilometers. Used only by the outward proximity query.
func GreatCircleKm(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
