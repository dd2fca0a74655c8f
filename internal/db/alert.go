package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Alert is one deduplicated alert episode. TransponderID holds the dedup
// track key, which is a synthetic "UNKNOWN-<region>" value for tracks with
// no transponder. RegionID is 0 for alerts raised outside any region.
type Alert struct {
	ID                int64     `json:"id"`
	FlightID          int64     `json:"flight_id"`
	TransponderID     string    `json:"transponder_id"`
	RegionID          int64     `json:"region_id"`
	Severity          string    `json:"severity"`
	Message           string    `json:"message"`
	ThreatReasons     []string  `json:"threat_reasons"`
	RecommendedAction string    `json:"recommended_action"`
	Resolved          bool      `json:"resolved"`
	CreatedAt         time.Time `json:"created_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

const alertColumns = `id, flight_id, transponder_id, region_id, severity, message,
	threat_reasons, recommended_action, resolved, created_at_ms, last_seen_ms`

// InsertAlert stores a new open alert and assigns its id.
func (db *DB) InsertAlert(ctx context.Context, a *Alert) error {
	reasons, err := json.Marshal(a.ThreatReasons)
	if err != nil {
		return fmt.Errorf("failed to encode threat reasons: %w", err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO alerts (
			flight_id, transponder_id, region_id, severity, message,
			threat_reasons, recommended_action, resolved, created_at_ms, last_seen_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FlightID,
		a.TransponderID,
		a.RegionID,
		a.Severity,
		a.Message,
		string(reasons),
		a.RecommendedAction,
		boolToInt(a.Resolved),
		a.CreatedAt.UnixMilli(),
		a.LastSeenAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get alert id: %w", err)
	}
	a.ID = id
	return nil
}

// GetAlert retrieves one alert by id.
func (db *DB) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return a, err
}

// ListRecentAlerts returns alerts newest first. A nil resolved filter
// returns both open and resolved alerts.
func (db *DB) ListRecentAlerts(ctx context.Context, resolved *bool, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	args := []any{}
	if resolved != nil {
		query += ` WHERE resolved = ?`
		args = append(args, boolToInt(*resolved))
	}
	query += ` ORDER BY created_at_ms DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return collectAlerts(rows)
}

// OpenAlerts returns every unresolved alert, oldest first. The deduper uses
// this to rebuild its in-memory state after a restart.
func (db *DB) OpenAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE resolved = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	return collectAlerts(rows)
}

// ResolveAlert marks an open alert resolved. The transition is idempotent:
// resolving an already resolved alert is a no-op reported as changed=false.
// Only an id with no row at all returns ErrNotFound.
func (db *DB) ResolveAlert(ctx context.Context, id int64, now time.Time) (changed bool, err error) {
	result, err := db.ExecContext(ctx, `
		UPDATE alerts SET resolved = 1, last_seen_ms = ?
		WHERE id = ? AND resolved = 0`,
		now.UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check resolve result: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check alert %d: %w", id, err)
	}
	return false, nil
}

// TouchAlert refreshes last_seen on an open alert when a matching sample
// arrives, and optionally repoints flight_id at the newest observation.
func (db *DB) TouchAlert(ctx context.Context, id, flightID int64, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE alerts SET last_seen_ms = ?, flight_id = ?
		WHERE id = ? AND resolved = 0`,
		now.UnixMilli(), flightID, id)
	if err != nil {
		return fmt.Errorf("failed to touch alert %d: %w", id, err)
	}
	return nil
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var reasons string
	var resolved int
	var createdMs, lastSeenMs int64

	err := row.Scan(
		&a.ID,
		&a.FlightID,
		&a.TransponderID,
		&a.RegionID,
		&a.Severity,
		&a.Message,
		&reasons,
		&a.RecommendedAction,
		&resolved,
		&createdMs,
		&lastSeenMs,
	)
	if err != nil {
		return nil, err
	}

	a.Resolved = resolved != 0
	a.CreatedAt = time.UnixMilli(createdMs).UTC()
	a.LastSeenAt = time.UnixMilli(lastSeenMs).UTC()
	if err := json.Unmarshal([]byte(reasons), &a.ThreatReasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons for alert %d: %w", a.ID, err)
	}
	return &a, nil
}

func collectAlerts(rows *sql.Rows) ([]Alert, error) {
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}
