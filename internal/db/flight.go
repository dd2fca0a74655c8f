package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/airspace.report/internal/predict"
)

// Flight is one persisted telemetry observation with its derived fields.
// Records are immutable once inserted and expire via the retention sweep.
type Flight struct {
	ID                  int64            `json:"id"`
	TransponderID       *string          `json:"transponder_id"`
	Timestamp           time.Time        `json:"timestamp"`
	Latitude            float64          `json:"latitude"`
	Longitude           float64          `json:"longitude"`
	Altitude            float64          `json:"altitude"`
	Groundspeed         float64          `json:"groundspeed"`
	Track               float64          `json:"track"`
	IsUnknown           bool             `json:"is_unknown"`
	Classification      string           `json:"classification"`
	AircraftModel       string           `json:"aircraft_model"`
	ThreatLevel         string           `json:"threat_level"`
	ThreatScore         int              `json:"threat_score"`
	PredictedTrajectory []predict.Sample `json:"predicted_trajectory"`
	DetectionConfidence float64          `json:"detection_confidence"`
	SignalStrength      float64          `json:"signal_strength"`
	WeatherCondition    string           `json:"weather_condition"`
	InRestrictedArea    bool             `json:"in_restricted_area"`
}

const flightColumns = `id, transponder_id, timestamp_ms, latitude, longitude, altitude,
	groundspeed, track, is_unknown, classification, aircraft_model, threat_level,
	threat_score, predicted_trajectory, detection_confidence, signal_strength,
	weather_condition, in_restricted_area`

// InsertFlight appends a flight record and assigns its id. The write is the
// atomic commit point of the ingest pipeline.
func (db *DB) InsertFlight(ctx context.Context, f *Flight) error {
	trajectory, err := json.Marshal(f.PredictedTrajectory)
	if err != nil {
		return fmt.Errorf("failed to encode trajectory: %w", err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO flights (
			transponder_id, timestamp_ms, latitude, longitude, altitude,
			groundspeed, track, is_unknown, classification, aircraft_model,
			threat_level, threat_score, predicted_trajectory,
			detection_confidence, signal_strength, weather_condition,
			in_restricted_area
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TransponderID,
		f.Timestamp.UnixMilli(),
		f.Latitude,
		f.Longitude,
		f.Altitude,
		f.Groundspeed,
		f.Track,
		boolToInt(f.IsUnknown),
		f.Classification,
		f.AircraftModel,
		f.ThreatLevel,
		f.ThreatScore,
		string(trajectory),
		f.DetectionConfidence,
		f.SignalStrength,
		f.WeatherCondition,
		boolToInt(f.InRestrictedArea),
	)
	if err != nil {
		return fmt.Errorf("failed to insert flight: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get flight id: %w", err)
	}
	f.ID = id
	return nil
}

// GetFlight retrieves a single flight by id.
func (db *DB) GetFlight(ctx context.Context, id int64) (*Flight, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	return f, err
}

// ListRecentFlights returns the most recent insertions, newest first.
func (db *DB) ListRecentFlights(ctx context.Context, limit int) ([]Flight, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights ORDER BY timestamp_ms DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list flights: %w", err)
	}
	return collectFlights(rows)
}

// LatestFlights returns the newest record per transponder identifier (all
// unidentified tracks collapse onto one key), newest first. This is the fast
// dashboard snapshot.
func (db *DB) LatestFlights(ctx context.Context, limit int) ([]Flight, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+flightColumns+` FROM flights
		WHERE id IN (
			SELECT MAX(id) FROM flights
			GROUP BY COALESCE(transponder_id, 'UNKNOWN')
		)
		ORDER BY timestamp_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest flights: %w", err)
	}
	return collectFlights(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (*Flight, error) {
	var f Flight
	var timestampMs int64
	var isUnknown, inRestricted int
	var trajectory string

	err := row.Scan(
		&f.ID,
		&f.TransponderID,
		&timestampMs,
		&f.Latitude,
		&f.Longitude,
		&f.Altitude,
		&f.Groundspeed,
		&f.Track,
		&isUnknown,
		&f.Classification,
		&f.AircraftModel,
		&f.ThreatLevel,
		&f.ThreatScore,
		&trajectory,
		&f.DetectionConfidence,
		&f.SignalStrength,
		&f.WeatherCondition,
		&inRestricted,
	)
	if err != nil {
		return nil, err
	}

	f.Timestamp = time.UnixMilli(timestampMs).UTC()
	f.IsUnknown = isUnknown != 0
	f.InRestrictedArea = inRestricted != 0
	if err := json.Unmarshal([]byte(trajectory), &f.PredictedTrajectory); err != nil {
		return nil, fmt.Errorf("failed to decode trajectory for flight %d: %w", f.ID, err)
	}
	return &f, nil
}

func collectFlights(rows *sql.Rows) ([]Flight, error) {
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flights, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
