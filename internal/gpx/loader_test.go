package gpx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"colorum/internal/store"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="14.5995" lon="120.9842"><ele>12.0</ele></trkpt>
    <trkpt lat="14.5903" lon="120.9829"></trkpt>
    <trkpt lat="14.5807" lon="120.9846"></trkpt>
  </trkseg></trk>
</gpx>`

func newLoader(t *testing.T) (*Loader, *store.Memory, string) {
	t.Helper()
	dir := t.TempDir()
	m := store.NewMemory()
	return NewLoader(m, dir, zerolog.Nop()), m, dir
}

func TestLoadTrackPointsInOrder(t *testing.T) {
	l, m, dir := newLoader(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(dir, "r1.gpx"), []byte(sampleGPX), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = m.SetRouteFile(ctx, "R1", "r1.gpx")

	pts, err := l.Load(ctx, "R1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("points: got %d, want 3", len(pts))
	}
	if pts[0].Lat != 14.5995 || pts[0].Lon != 120.9842 {
		t.Fatalf("first point: %+v", pts[0])
	}
	if pts[2].Lat != 14.5807 {
		t.Fatalf("order not preserved: %+v", pts)
	}
}

func TestLoadRouteWithoutRecord(t *testing.T) {
	l, _, _ := newLoader(t)
	if _, err := l.Load(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadRouteWithoutAssociation(t *testing.T) {
	l, m, _ := newLoader(t)
	ctx := context.Background()
	_, _, _ = m.ReconcileRoutes(ctx, []string{"R1"})
	if _, err := l.Load(ctx, "R1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadMissingFileOnDisk(t *testing.T) {
	l, m, _ := newLoader(t)
	ctx := context.Background()
	_ = m.SetRouteFile(ctx, "R1", "gone.gpx")
	if _, err := l.Load(ctx, "R1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadInvalidDocument(t *testing.T) {
	l, m, dir := newLoader(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(dir, "bad.gpx"), []byte("<gpx><trk>"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = m.SetRouteFile(ctx, "R1", "bad.gpx")
	_, err := l.Load(ctx, "R1")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want ParseError", err)
	}
}

func TestParseIgnoresExtraFields(t *testing.T) {
	pts, err := Parse("sample.gpx", []byte(sampleGPX))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("points: got %d, want 3", len(pts))
	}
}
