package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib"

	"colorum/internal/model"
)

// Postgres persists devices and routes in PostgreSQL via the pgx stdlib
// driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir executes the .sql files in dir in lexical order.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlText, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlText)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) GetDevice(ctx context.Context, id string) (model.Device, error) {
	var d model.Device
	var route sql.NullString
	row := p.db.QueryRowContext(ctx, `SELECT id, online, lat, lon, associated_route, distance_to_route, is_colorum FROM gps_devices WHERE id=$1`, id)
	if err := row.Scan(&d.ID, &d.Online, &d.LastLocation.Lat, &d.LastLocation.Lon, &route, &d.DistanceToRoute, &d.Colorum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, ErrNotFound
		}
		return d, err
	}
	d.AssociatedRoute = route.String
	return d, nil
}

func (p *Postgres) UpsertDevice(ctx context.Context, report model.DeviceReport) (model.Device, error) {
	loc := report.Location()
	var d model.Device
	var route sql.NullString
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO gps_devices (id, online, lat, lon, associated_route, distance_to_route, is_colorum)
		VALUES ($1, TRUE, $2, $3, $4, 0, FALSE)
		ON CONFLICT (id) DO UPDATE SET online=TRUE, lat=EXCLUDED.lat, lon=EXCLUDED.lon, associated_route=EXCLUDED.associated_route
		RETURNING id, online, lat, lon, associated_route, distance_to_route, is_colorum`,
		report.DeviceID, loc.Lat, loc.Lon, nullIfEmpty(report.AssociatedRoute))
	if err := row.Scan(&d.ID, &d.Online, &d.LastLocation.Lat, &d.LastLocation.Lon, &route, &d.DistanceToRoute, &d.Colorum); err != nil {
		return d, err
	}
	d.AssociatedRoute = route.String
	return d, nil
}

func (p *Postgres) SetDeviceVerdict(ctx context.Context, id string, distanceM float64, colorum bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE gps_devices SET distance_to_route=$2, is_colorum=$3 WHERE id=$1`, id, distanceM, colorum)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListColorumDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, online, lat, lon, associated_route, distance_to_route, is_colorum FROM gps_devices WHERE is_colorum ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Device{}
	for rows.Next() {
		var d model.Device
		var route sql.NullString
		if err := rows.Scan(&d.ID, &d.Online, &d.LastLocation.Lat, &d.LastLocation.Lon, &route, &d.DistanceToRoute, &d.Colorum); err != nil {
			return nil, err
		}
		d.AssociatedRoute = route.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	var r model.Route
	var fn sql.NullString
	row := p.db.QueryRowContext(ctx, `SELECT id, gpx_filename FROM puv_routes WHERE id=$1`, id)
	if err := row.Scan(&r.ID, &fn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	r.GPXFilename = fn.String
	return r, nil
}

func (p *Postgres) ListRoutes(ctx context.Context) ([]model.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, gpx_filename FROM puv_routes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		var r model.Route
		var fn sql.NullString
		if err := rows.Scan(&r.ID, &fn); err != nil {
			return nil, err
		}
		r.GPXFilename = fn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) SetRouteFile(ctx context.Context, id, filename string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO puv_routes (id, gpx_filename) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET gpx_filename=EXCLUDED.gpx_filename`, id, nullIfEmpty(filename))
	return err
}

func (p *Postgres) ReconcileRoutes(ctx context.Context, ids []string) ([]string, []model.Route, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	authoritative := map[string]struct{}{}
	created := []string{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := authoritative[id]; ok {
			continue
		}
		authoritative[id] = struct{}{}
		res, err := tx.ExecContext(ctx, `INSERT INTO puv_routes (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
		if err != nil {
			return nil, nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = append(created, id)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, gpx_filename FROM puv_routes ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	deleted := []model.Route{}
	for rows.Next() {
		var r model.Route
		var fn sql.NullString
		if err := rows.Scan(&r.ID, &fn); err != nil {
			rows.Close()
			return nil, nil, err
		}
		r.GPXFilename = fn.String
		if _, ok := authoritative[r.ID]; !ok {
			deleted = append(deleted, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	for _, r := range deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM puv_routes WHERE id=$1`, r.ID); err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	sort.Strings(created)
	return created, deleted, nil
}

func (p *Postgres) DeleteAllRoutes(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM puv_routes`)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
