package ingest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"colorum/internal/model"
	"colorum/internal/store"
)

func refs(ids ...string) []model.RouteRef {
	out := make([]model.RouteRef, len(ids))
	for i, id := range ids {
		out[i] = model.RouteRef{RouteID: id}
	}
	return out
}

func TestApplyCreatesAndDeletes(t *testing.T) {
	m := store.NewMemory()
	r := NewRouteReconciler(m, zerolog.Nop())
	ctx := context.Background()

	_, _, _ = r.Apply(ctx, refs("R1", "R2", "R3"))
	created, deleted, err := r.Apply(ctx, refs("R1", "R3", "R4"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(created) != 1 || created[0] != "R4" {
		t.Fatalf("created: %v", created)
	}
	if len(deleted) != 1 || deleted[0].ID != "R2" {
		t.Fatalf("deleted: %+v", deleted)
	}
	routes, _ := m.ListRoutes(ctx)
	want := []string{"R1", "R3", "R4"}
	if len(routes) != len(want) {
		t.Fatalf("final routes: %+v", routes)
	}
	for i, id := range want {
		if routes[i].ID != id {
			t.Fatalf("final routes: %+v", routes)
		}
	}
}

func TestApplyOrderInsensitive(t *testing.T) {
	a := store.NewMemory()
	b := store.NewMemory()
	ctx := context.Background()
	_, _, _ = NewRouteReconciler(a, zerolog.Nop()).Apply(ctx, refs("R2", "R1", "R3", "R1"))
	_, _, _ = NewRouteReconciler(b, zerolog.Nop()).Apply(ctx, refs("R3", "R2", "R1"))
	ra, _ := a.ListRoutes(ctx)
	rb, _ := b.ListRoutes(ctx)
	if len(ra) != len(rb) {
		t.Fatalf("sets differ: %v vs %v", ra, rb)
	}
	for i := range ra {
		if ra[i].ID != rb[i].ID {
			t.Fatalf("sets differ: %v vs %v", ra, rb)
		}
	}
}

func TestApplyIdempotent(t *testing.T) {
	m := store.NewMemory()
	r := NewRouteReconciler(m, zerolog.Nop())
	ctx := context.Background()
	_, _, _ = r.Apply(ctx, refs("R1", "R2"))
	created, deleted, err := r.Apply(ctx, refs("R1", "R2"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(created) != 0 || len(deleted) != 0 {
		t.Fatalf("repeat apply changed state: created=%v deleted=%v", created, deleted)
	}
}
