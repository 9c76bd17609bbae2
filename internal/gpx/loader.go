// Package gpx resolves a route id to its stored corridor geometry.
package gpx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"colorum/internal/model"
	"colorum/internal/store"
)

// ParseError marks a GPX document that could not be parsed. Parsing is
// strict: a structurally invalid file is rejected whole rather than read
// point by point.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse gpx %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Loader reads route path definitions from the GPX directory. Files are
// re-read on every call; there is no change notification to drive cache
// invalidation, so nothing is cached.
type Loader struct {
	store  store.Store
	dir    string
	logger zerolog.Logger
}

func NewLoader(s store.Store, dir string, logger zerolog.Logger) *Loader {
	return &Loader{store: s, dir: dir, logger: logger.With().Str("component", "gpx").Logger()}
}

// Load returns the ordered point sequence of the route's stored GPX file.
// store.ErrNotFound when the route has no record or no file association (or
// the file vanished); *ParseError on invalid GPX content. Elevation and
// timestamps are ignored.
func (l *Loader) Load(ctx context.Context, routeID string) ([]model.GeoPoint, error) {
	rt, err := l.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if rt.GPXFilename == "" {
		return nil, store.ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(l.dir, rt.GPXFilename))
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn().Str("route", routeID).Str("file", rt.GPXFilename).Msg("associated GPX file missing on disk")
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return Parse(rt.GPXFilename, data)
}

// Parse extracts the point sequence from a GPX document in file order:
// track segments first, then route points, then bare waypoints.
func Parse(filename string, data []byte) ([]model.GeoPoint, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}
	points := []model.GeoPoint{}
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				points = append(points, model.GeoPoint{Lat: p.Latitude, Lon: p.Longitude})
			}
		}
	}
	for _, rte := range doc.Routes {
		for _, p := range rte.Points {
			points = append(points, model.GeoPoint{Lat: p.Latitude, Lon: p.Longitude})
		}
	}
	for _, p := range doc.Waypoints {
		points = append(points, model.GeoPoint{Lat: p.Latitude, Lon: p.Longitude})
	}
	return points, nil
}
