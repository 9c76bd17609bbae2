package store

import (
	"context"
	"sync"
	"testing"

	"colorum/internal/model"
)

func report(id, route string, lat, lon float64) model.DeviceReport {
	return model.DeviceReport{DeviceID: id, LastLocation: [2]float64{lat, lon}, AssociatedRoute: route}
}

func TestUpsertDeviceCreatesWithDefaults(t *testing.T) {
	m := NewMemory()
	d, err := m.UpsertDevice(context.Background(), report("dev1", "R1", 14.6, 120.98))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !d.Online || d.DistanceToRoute != 0 || d.Colorum {
		t.Fatalf("new device defaults wrong: %+v", d)
	}
	if d.AssociatedRoute != "R1" || d.LastLocation.Lat != 14.6 {
		t.Fatalf("fields not applied: %+v", d)
	}
}

func TestUpsertDevicePreservesVerdict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.UpsertDevice(ctx, report("dev1", "R1", 14.6, 120.98))
	if err := m.SetDeviceVerdict(ctx, "dev1", 250, true); err != nil {
		t.Fatalf("verdict: %v", err)
	}
	// A later report must not reset distance/colorum.
	d, err := m.UpsertDevice(ctx, report("dev1", "R2", 14.7, 121.0))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if d.DistanceToRoute != 250 || !d.Colorum {
		t.Fatalf("verdict reset by upsert: %+v", d)
	}
	if d.AssociatedRoute != "R2" || d.LastLocation.Lat != 14.7 {
		t.Fatalf("update not applied: %+v", d)
	}
}

func TestUpsertOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.UpsertDevice(ctx, report("dev1", "R1", 1, 1))
	_, _ = m.UpsertDevice(ctx, report("dev1", "R2", 2, 2))
	d, err := m.GetDevice(ctx, "dev1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.AssociatedRoute != "R2" || d.LastLocation.Lat != 2 {
		t.Fatalf("expected U2 state, got %+v", d)
	}
}

func TestConcurrentUpsertsNoLostUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.UpsertDevice(ctx, report("dev1", "R1", 1, 1))
			_ = m.SetDeviceVerdict(ctx, "dev1", 10, true)
		}()
	}
	wg.Wait()
	d, err := m.GetDevice(ctx, "dev1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.DistanceToRoute != 10 || !d.Colorum {
		t.Fatalf("lost update: %+v", d)
	}
}

func TestReconcileRoutesDiff(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.SetRouteFile(ctx, "R1", "r1.gpx")
	_, _, _ = m.ReconcileRoutes(ctx, []string{"R1", "R2", "R3"})

	created, deleted, err := m.ReconcileRoutes(ctx, []string{"R1", "R3", "R4"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(created) != 1 || created[0] != "R4" {
		t.Fatalf("created: %v", created)
	}
	if len(deleted) != 1 || deleted[0].ID != "R2" {
		t.Fatalf("deleted: %+v", deleted)
	}
	routes, _ := m.ListRoutes(ctx)
	if len(routes) != 3 || routes[0].ID != "R1" || routes[1].ID != "R3" || routes[2].ID != "R4" {
		t.Fatalf("final set: %+v", routes)
	}
	// R1's file association survives reconciliation.
	r1, err := m.GetRoute(ctx, "R1")
	if err != nil || r1.GPXFilename != "r1.gpx" {
		t.Fatalf("R1 association: %+v err=%v", r1, err)
	}
}

func TestReconcileRoutesIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ids := []string{"R3", "R1", "R2"}
	_, _, _ = m.ReconcileRoutes(ctx, ids)
	first, _ := m.ListRoutes(ctx)
	created, deleted, err := m.ReconcileRoutes(ctx, []string{"R1", "R2", "R3"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(created) != 0 || len(deleted) != 0 {
		t.Fatalf("second pass changed state: created=%v deleted=%v", created, deleted)
	}
	second, _ := m.ListRoutes(ctx)
	if len(first) != len(second) {
		t.Fatalf("route sets differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("route sets differ at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestGetMissing(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetDevice(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("device: got %v", err)
	}
	if _, err := m.GetRoute(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("route: got %v", err)
	}
}
