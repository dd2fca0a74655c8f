package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/airspace.report/internal/geo"
)

// Region is a named restricted-airspace polygon. PolygonJSON holds the
// GeoJSON geometry exactly as submitted; the parsed form is cached per
// request by callers, not here.
type Region struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PolygonJSON string    `json:"polygon_json"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Geometry parses the stored polygon. Stored geometry was validated on
// create, so an error here indicates corruption.
func (r *Region) Geometry() (*geo.RegionGeometry, error) {
	return geo.ParseRegion(r.PolygonJSON)
}

// CreateRegion validates the polygon and inserts the region as active.
func (db *DB) CreateRegion(ctx context.Context, name, polygonJSON string, now time.Time) (*Region, error) {
	if name == "" {
		return nil, fmt.Errorf("region name is required")
	}
	if _, err := geo.ParseRegion(polygonJSON); err != nil {
		return nil, fmt.Errorf("invalid region polygon: %w", err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO restricted_regions (name, polygon_json, is_active, created_at_ms)
		VALUES (?, ?, 1, ?)`,
		name, polygonJSON, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert region: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get region id: %w", err)
	}
	return &Region{
		ID:          id,
		Name:        name,
		PolygonJSON: polygonJSON,
		IsActive:    true,
		CreatedAt:   now.UTC(),
	}, nil
}

// GetRegion retrieves one region by id.
func (db *DB) GetRegion(ctx context.Context, id int64) (*Region, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, polygon_json, is_active, created_at_ms
		FROM restricted_regions WHERE id = ?`, id)
	r, err := scanRegion(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("region %d: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRegions returns all regions, oldest first.
func (db *DB) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, polygon_json, is_active, created_at_ms
		FROM restricted_regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	return collectRegions(rows)
}

// ActiveRegions returns only the regions currently enforced by the ingest
// pipeline.
func (db *DB) ActiveRegions(ctx context.Context) ([]Region, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, polygon_json, is_active, created_at_ms
		FROM restricted_regions WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active regions: %w", err)
	}
	return collectRegions(rows)
}

// ToggleRegion flips the active flag and returns the new state.
func (db *DB) ToggleRegion(ctx context.Context, id int64) (*Region, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE restricted_regions SET is_active = 1 - is_active WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle region %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check toggle result: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("region %d: %w", id, ErrNotFound)
	}
	return db.GetRegion(ctx, id)
}

// DeleteRegion removes a region. Existing alerts keep their region_id as a
// historical reference.
func (db *DB) DeleteRegion(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM restricted_regions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete region %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("region %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountRegions reports the total number of regions, used by startup seeding.
func (db *DB) CountRegions(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM restricted_regions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count regions: %w", err)
	}
	return n, nil
}

func scanRegion(row rowScanner) (*Region, error) {
	var r Region
	var isActive int
	var createdMs int64
	if err := row.Scan(&r.ID, &r.Name, &r.PolygonJSON, &isActive, &createdMs); err != nil {
		return nil, err
	}
	r.IsActive = isActive != 0
	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &r, nil
}

func collectRegions(rows *sql.Rows) ([]Region, error) {
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}
