package store

import (
	"context"
	"errors"

	"colorum/internal/model"
)

// Store is the persistence interface for device and route state.
type Store interface {
	// Devices
	GetDevice(ctx context.Context, id string) (model.Device, error)
	// UpsertDevice creates the device on first sight (online=true,
	// distance=0, colorum=false) and always overwrites online, position and
	// associated route from the report. Distance and colorum are left as
	// stored; use SetDeviceVerdict after a successful evaluation.
	UpsertDevice(ctx context.Context, report model.DeviceReport) (model.Device, error)
	SetDeviceVerdict(ctx context.Context, id string, distanceM float64, colorum bool) error
	ListColorumDevices(ctx context.Context) ([]model.Device, error)

	// Routes
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context) ([]model.Route, error)
	// SetRouteFile associates a stored GPX filename with a route, creating
	// the route record if necessary. The old reference is overwritten.
	SetRouteFile(ctx context.Context, id, filename string) error
	// ReconcileRoutes applies the full authoritative id set atomically:
	// missing ids are created as bare routes, ids absent from the set are
	// deleted. Returns created ids and the deleted records, so callers can
	// report orphaned GPX files.
	ReconcileRoutes(ctx context.Context, ids []string) (created []string, deleted []model.Route, err error)
	DeleteAllRoutes(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
