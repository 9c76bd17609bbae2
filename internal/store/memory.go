package store

import (
	"context"
	"sort"
	"sync"

	"colorum/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// A single mutex serializes all access: per-device upserts cannot lose
// updates, and a reconcile pass is atomic with respect to concurrent reads,
// so a route is never observed half-deleted.
type Memory struct {
	mu      sync.Mutex
	devices map[string]model.Device
	routes  map[string]model.Route
}

func NewMemory() *Memory {
	return &Memory{
		devices: map[string]model.Device{},
		routes:  map[string]model.Route{},
	}
}

func (m *Memory) GetDevice(ctx context.Context, id string) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpsertDevice(ctx context.Context, report model.DeviceReport) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[report.DeviceID]
	if !ok {
		d = model.Device{ID: report.DeviceID}
	}
	d.Online = true
	d.LastLocation = report.Location()
	d.AssociatedRoute = report.AssociatedRoute
	m.devices[report.DeviceID] = d
	return d, nil
}

func (m *Memory) SetDeviceVerdict(ctx context.Context, id string, distanceM float64, colorum bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.DistanceToRoute = distanceM
	d.Colorum = colorum
	m.devices[id] = d
	return nil
}

func (m *Memory) ListColorumDevices(ctx context.Context) ([]model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Device{}
	for _, d := range m.devices {
		if d.Colorum {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetRouteFile(ctx context.Context, id, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.routes[id]
	r.ID = id
	r.GPXFilename = filename
	m.routes[id] = r
	return nil
}

func (m *Memory) ReconcileRoutes(ctx context.Context, ids []string) ([]string, []model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	authoritative := map[string]struct{}{}
	created := []string{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		authoritative[id] = struct{}{}
		if _, ok := m.routes[id]; !ok {
			m.routes[id] = model.Route{ID: id}
			created = append(created, id)
		}
	}
	deleted := []model.Route{}
	for id, r := range m.routes {
		if _, ok := authoritative[id]; !ok {
			deleted = append(deleted, r)
			delete(m.routes, id)
		}
	}
	sort.Strings(created)
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].ID < deleted[j].ID })
	return created, deleted, nil
}

func (m *Memory) DeleteAllRoutes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = map[string]model.Route{}
	return nil
}
