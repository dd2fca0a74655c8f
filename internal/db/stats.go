package db

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FlightStats summarizes the flights table for the dashboard. Percentiles
// are computed over threat scores of the stored records.
type FlightStats struct {
	TotalFlights    int            `json:"total_flights"`
	UnknownFlights  int            `json:"unknown_flights"`
	InRestrictedNow int            `json:"in_restricted_now"`
	ByThreatLevel   map[string]int `json:"by_threat_level"`
	MeanThreatScore float64        `json:"mean_threat_score"`
	ScoreP50        float64        `json:"score_p50"`
	ScoreP85        float64        `json:"score_p85"`
	ScoreP98        float64        `json:"score_p98"`
}

// Stats computes aggregate counts and threat score distribution.
func (db *DB) Stats(ctx context.Context) (*FlightStats, error) {
	s := &FlightStats{ByThreatLevel: make(map[string]int)}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(is_unknown), 0),
			COALESCE(SUM(in_restricted_area), 0)
		FROM flights`).
		Scan(&s.TotalFlights, &s.UnknownFlights, &s.InRestrictedNow)
	if err != nil {
		return nil, fmt.Errorf("failed to compute flight counts: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT threat_level, COUNT(*) FROM flights GROUP BY threat_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by threat level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		s.ByThreatLevel[level] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scoreRows, err := db.QueryContext(ctx, `SELECT threat_score FROM flights`)
	if err != nil {
		return nil, fmt.Errorf("failed to read threat scores: %w", err)
	}
	defer scoreRows.Close()

	var scores []float64
	for scoreRows.Next() {
		var v float64
		if err := scoreRows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan threat score: %w", err)
		}
		scores = append(scores, v)
	}
	if err := scoreRows.Err(); err != nil {
		return nil, err
	}

	if len(scores) > 0 {
		sort.Float64s(scores)
		s.MeanThreatScore = stat.Mean(scores, nil)
		s.ScoreP50 = stat.Quantile(0.50, stat.Empirical, scores, nil)
		s.ScoreP85 = stat.Quantile(0.85, stat.Empirical, scores, nil)
		s.ScoreP98 = stat.Quantile(0.98, stat.Empirical, scores, nil)
	}
	return s, nil
}
