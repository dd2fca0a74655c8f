package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/airspace.report/internal/monitoring"
	"github.com/banshee-data/airspace.report/internal/timeutil"
)

// retention sweep deletes in batches to keep write transactions short.
const retentionBatchSize = 500

// RetentionWorker expires old flight records and old resolved alerts on a
// fixed interval. Unresolved alerts are never deleted regardless of age.
type RetentionWorker struct {
	DB           *DB
	FlightWindow time.Duration
	AlertWindow  time.Duration
	Interval     time.Duration
	Clock        timeutil.Clock
	StopChan     chan struct{}
}

// NewRetentionWorker builds a worker with the given windows. Non-positive
// windows fall back to 24 h for flights and 30 d for resolved alerts.
func NewRetentionWorker(db *DB, flightWindow, alertWindow time.Duration) *RetentionWorker {
	if flightWindow <= 0 {
		flightWindow = 24 * time.Hour
	}
	if alertWindow <= 0 {
		alertWindow = 30 * 24 * time.Hour
	}
	return &RetentionWorker{
		DB:           db,
		FlightWindow: flightWindow,
		AlertWindow:  alertWindow,
		Interval:     10 * time.Minute,
		Clock:        timeutil.RealClock{},
		StopChan:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine. Stop() terminates it.
func (w *RetentionWorker) Start() {
	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C():
				if err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("retention sweep failed: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop signals the sweep loop to exit.
func (w *RetentionWorker) Stop() {
	close(w.StopChan)
}

// RunOnce performs a single sweep. Exposed for tests and manual triggering.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	now := w.Clock.Now()

	flights, err := w.deleteBatched(ctx, `
		DELETE FROM flights WHERE id IN (
			SELECT id FROM flights WHERE timestamp_ms < ? LIMIT ?
		)`, now.Add(-w.FlightWindow).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to expire flights: %w", err)
	}

	alerts, err := w.deleteBatched(ctx, `
		DELETE FROM alerts WHERE id IN (
			SELECT id FROM alerts
			WHERE resolved = 1 AND last_seen_ms < ? LIMIT ?
		)`, now.Add(-w.AlertWindow).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to expire resolved alerts: %w", err)
	}

	if flights > 0 || alerts > 0 {
		monitoring.Logf("retention sweep removed %d flights, %d resolved alerts", flights, alerts)
	}
	return nil
}

// deleteBatched repeats a bounded delete until no rows remain, so a large
// backlog never holds the write lock for long.
func (w *RetentionWorker) deleteBatched(ctx context.Context, query string, cutoffMs int64) (int64, error) {
	var total int64
	for {
		result, err := w.DB.ExecContext(ctx, query, cutoffMs, retentionBatchSize)
		if err != nil {
			return total, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < retentionBatchSize {
			return total, nil
		}
	}
}
