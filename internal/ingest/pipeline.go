// Package ingest runs the telemetry evaluation pipeline: validation,
// classification, geofencing, trajectory prediction, detection simulation,
// threat scoring, persistence, and alert dispatch, in that order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/airspace.report/internal/alerting"
	"github.com/banshee-data/airspace.report/internal/classify"
	"github.com/banshee-data/airspace.report/internal/config"
	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/detect"
	"github.com/banshee-data/airspace.report/internal/geo"
	"github.com/banshee-data/airspace.report/internal/monitoring"
	"github.com/banshee-data/airspace.report/internal/predict"
	"github.com/banshee-data/airspace.report/internal/threat"
	"github.com/banshee-data/airspace.report/internal/timeutil"
)

// ErrInvalidTelemetry wraps all telemetry validation failures.
var ErrInvalidTelemetry = errors.New("invalid telemetry")

// ErrStorageUnavailable is returned when persistence fails within the
// ingest deadline. The report was evaluated but not committed.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Telemetry is one raw position report as submitted by a sensor or feed.
type Telemetry struct {
	TransponderID string  `json:"transponder_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	Groundspeed   float64 `json:"groundspeed"`
	Track         float64 `json:"track"`

	// Timestamp is optional; zero means "now".
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Validate checks the report's ranges. All violations are reported at once.
func (t *Telemetry) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for name, v := range map[string]float64{
		"latitude": t.Latitude, "longitude": t.Longitude, "altitude": t.Altitude,
		"groundspeed": t.Groundspeed, "track": t.Track,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad("%s is not a finite number", name)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTelemetry, strings.Join(problems, "; "))
	}

	if t.Latitude < -90 || t.Latitude > 90 {
		bad("latitude %v out of range [-90, 90]", t.Latitude)
	}
	if t.Longitude < -180 || t.Longitude > 180 {
		bad("longitude %v out of range [-180, 180]", t.Longitude)
	}
	if t.Altitude < 0 {
		bad("altitude %v is negative", t.Altitude)
	}
	if t.Groundspeed < 0 {
		bad("groundspeed %v is negative", t.Groundspeed)
	}
	if t.Track < 0 || t.Track >= 360 {
		bad("track %v out of range [0, 360)", t.Track)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTelemetry, strings.Join(problems, "; "))
	}
	return nil
}

// transponder normalizes the identifier: empty and the literal "UNKNOWN"
// both mean an unidentified track.
func (t *Telemetry) transponder() *string {
	id := strings.TrimSpace(t.TransponderID)
	if id == "" || strings.EqualFold(id, "UNKNOWN") {
		return nil
	}
	return &id
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	InsertFlight(ctx context.Context, f *db.Flight) error
	ActiveRegions(ctx context.Context) ([]db.Region, error)
}

type cachedRegion struct {
	id       int64
	name     string
	geometry *geo.RegionGeometry
}

// Pipeline evaluates telemetry reports. It is safe for concurrent use; the
// region cache is the only shared mutable state.
type Pipeline struct {
	Store     Store
	Deduper   *alerting.Deduper
	Bus       *alerting.Bus
	Predictor *predict.Predictor
	Simulator *detect.Simulator
	Tuning    *config.TuningConfig
	Clock     timeutil.Clock

	regionMu      sync.Mutex
	regionsLoaded bool
	regions       []cachedRegion
}

// New wires a Pipeline from its parts using the tuning parameters.
func New(store Store, deduper *alerting.Deduper, bus *alerting.Bus, tuning *config.TuningConfig) *Pipeline {
	return &Pipeline{
		Store:     store,
		Deduper:   deduper,
		Bus:       bus,
		Predictor: predict.New(tuning.GetPredictionHorizon(), tuning.GetPredictionStride()),
		Simulator: detect.New(tuning.GetRadarLatitude(), tuning.GetRadarLongitude(), tuning.GetRadarRangeKm(), nil),
		Tuning:    tuning,
		Clock:     timeutil.RealClock{},
	}
}

// InvalidateRegions drops the cached geometry; the next report reloads it.
// Called by the API after any region mutation.
func (p *Pipeline) InvalidateRegions() {
	p.regionMu.Lock()
	p.regionsLoaded = false
	p.regions = nil
	p.regionMu.Unlock()
}

// activeRegions returns parsed geometry for the active regions, loading on
// first use. Regions whose stored polygon no longer parses are skipped with
// a log line rather than failing every ingest.
func (p *Pipeline) activeRegions(ctx context.Context) ([]cachedRegion, error) {
	p.regionMu.Lock()
	defer p.regionMu.Unlock()

	if p.regionsLoaded {
		return p.regions, nil
	}

	rows, err := p.Store.ActiveRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active regions: %w", err)
	}

	regions := make([]cachedRegion, 0, len(rows))
	for _, r := range rows {
		g, err := r.Geometry()
		if err != nil {
			monitoring.Logf("skipping region %d (%s): stored polygon invalid: %v", r.ID, r.Name, err)
			continue
		}
		regions = append(regions, cachedRegion{id: r.ID, name: r.Name, geometry: g})
	}

	p.regions = regions
	p.regionsLoaded = true
	return regions, nil
}

// Process evaluates one report end to end and returns the stored flight.
// Persistence runs under the configured ingest deadline with one retry;
// when both attempts fail the evaluated record is discarded and
// ErrStorageUnavailable returned.
func (p *Pipeline) Process(ctx context.Context, report Telemetry) (*db.Flight, error) {
	start := time.Now()
	defer func() {
		monitoring.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	if err := report.Validate(); err != nil {
		monitoring.IngestTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	tid := report.transponder()
	ts := report.Timestamp
	if ts.IsZero() {
		ts = p.Clock.Now()
	}
	ts = ts.UTC()

	category := classify.Classify(report.Altitude, report.Groundspeed, tid != nil)

	regions, err := p.activeRegions(ctx)
	if err != nil {
		monitoring.IngestTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	var regionID int64
	for _, r := range regions {
		if r.geometry.Contains(report.Latitude, report.Longitude) {
			regionID = r.id
			break
		}
	}

	trajectory := p.Predictor.Path(report.Latitude, report.Longitude, report.Groundspeed, report.Track)
	observation := p.Simulator.Observe(report.Latitude, report.Longitude, report.Altitude)

	assessment := threat.Assess(threat.Input{
		InRestrictedArea:     regionID != 0,
		HasTransponder:       tid != nil,
		Classification:       category,
		GroundspeedKt:        report.Groundspeed,
		AltitudeFt:           report.Altitude,
		HighSpeedThresholdKt: p.Tuning.GetHighSpeedThresholdKt(),
	})

	flight := &db.Flight{
		TransponderID:       tid,
		Timestamp:           ts,
		Latitude:            report.Latitude,
		Longitude:           report.Longitude,
		Altitude:            report.Altitude,
		Groundspeed:         report.Groundspeed,
		Track:               report.Track,
		IsUnknown:           tid == nil,
		Classification:      string(category),
		AircraftModel:       classify.ModelGuess(report.Groundspeed, report.Altitude, category),
		ThreatLevel:         string(assessment.Level),
		ThreatScore:         assessment.Score,
		PredictedTrajectory: trajectory,
		DetectionConfidence: observation.Confidence,
		SignalStrength:      observation.SignalStrength,
		WeatherCondition:    observation.Weather,
		InRestrictedArea:    regionID != 0,
	}

	if err := p.persist(ctx, flight); err != nil {
		monitoring.IngestTotal.WithLabelValues("storage_error").Inc()
		return nil, err
	}
	monitoring.IngestTotal.WithLabelValues("accepted").Inc()

	if err := p.Deduper.Process(ctx, alerting.Sample{
		FlightID:      flight.ID,
		TransponderID: tid,
		RegionID:      regionID,
		Assessment:    assessment,
		Timestamp:     ts,
	}); err != nil {
		// The flight is committed; alerting failure must not reject it.
		monitoring.Logf("alert dispatch failed for flight %d: %v", flight.ID, err)
	}

	p.Bus.Publish(alerting.Event{Type: alerting.EventTrackUpdate, Data: flight})
	return flight, nil
}

// persist commits the flight under the ingest deadline, retrying once on a
// transient failure.
func (p *Pipeline) persist(ctx context.Context, flight *db.Flight) error {
	ctx, cancel := context.WithTimeout(ctx, p.Tuning.GetIngestTimeout())
	defer cancel()

	err := p.Store.InsertFlight(ctx, flight)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	monitoring.Logf("flight insert failed, retrying once: %v", err)
	if err := p.Store.InsertFlight(ctx, flight); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
