package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/monitoring"
	"github.com/banshee-data/airspace.report/internal/threat"
	"github.com/banshee-data/airspace.report/internal/timeutil"
)

// clear samples needed in a row before a track's alerts auto-close.
const clearStreakTarget = 2

// Resolution causes recorded on alert_resolved events.
const (
	ResolveManual  = "manual"
	ResolveCleared = "cleared"
	ResolveIdle    = "idle"
)

// AlertStore is the persistence surface the deduper needs.
type AlertStore interface {
	InsertAlert(ctx context.Context, a *db.Alert) error
	TouchAlert(ctx context.Context, id, flightID int64, now time.Time) error
	ResolveAlert(ctx context.Context, id int64, now time.Time) (bool, error)
	OpenAlerts(ctx context.Context) ([]db.Alert, error)
}

// Sample is one scored observation handed to the deduper by the pipeline.
type Sample struct {
	FlightID      int64
	TransponderID *string
	RegionID      int64 // 0 when outside every active region
	Assessment    threat.Assessment
	Timestamp     time.Time
}

// TrackKey returns the dedup track identifier: the transponder id, or a
// synthetic key scoped to the region for unidentified tracks.
func (s Sample) TrackKey() string {
	if s.TransponderID != nil && *s.TransponderID != "" {
		return *s.TransponderID
	}
	return fmt.Sprintf("UNKNOWN-%d", s.RegionID)
}

// dedupKey identifies one alert episode. A change in any component starts a
// new episode.
type dedupKey struct {
	track    string
	regionID int64
	severity threat.Level
}

type openEpisode struct {
	alertID  int64
	lastSeen time.Time
}

// resolvedEvent is the payload of alert_resolved bus events.
type resolvedEvent struct {
	ID            int64  `json:"id"`
	TransponderID string `json:"transponder_id"`
	Cause         string `json:"cause"`
}

// Deduper collapses repeated High and Critical observations of the same
// track, region, and severity into single alert episodes, and auto-closes
// episodes when the track clears or goes quiet.
type Deduper struct {
	Store      AlertStore
	Bus        *Bus
	Clock      timeutil.Clock
	IdleWindow time.Duration

	// ScanInterval drives the idle sweep loop started by Start.
	ScanInterval time.Duration
	StopChan     chan struct{}

	mu          sync.Mutex
	open        map[dedupKey]*openEpisode
	clearStreak map[string]int
}

// NewDeduper builds a Deduper. A non-positive idleWindow defaults to 120 s.
func NewDeduper(store AlertStore, bus *Bus, idleWindow time.Duration) *Deduper {
	if idleWindow <= 0 {
		idleWindow = 120 * time.Second
	}
	return &Deduper{
		Store:        store,
		Bus:          bus,
		Clock:        timeutil.RealClock{},
		IdleWindow:   idleWindow,
		ScanInterval: 10 * time.Second,
		StopChan:     make(chan struct{}),
		open:         make(map[dedupKey]*openEpisode),
		clearStreak:  make(map[string]int),
	}
}

// Load rebuilds the in-memory episode state from unresolved alerts, so a
// restart does not re-raise alerts for tracks already alerted on.
func (d *Deduper) Load(ctx context.Context) error {
	alerts, err := d.Store.OpenAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open alerts: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range alerts {
		k := dedupKey{track: a.TransponderID, regionID: a.RegionID, severity: threat.Level(a.Severity)}
		d.open[k] = &openEpisode{alertID: a.ID, lastSeen: a.LastSeenAt}
	}
	if len(alerts) > 0 {
		monitoring.Logf("deduper restored %d open alert episodes", len(alerts))
	}
	return nil
}

// Process applies one scored sample: it opens a new episode, refreshes an
// existing one, or advances the track's clear streak.
func (d *Deduper) Process(ctx context.Context, s Sample) error {
	track := s.TrackKey()
	severity := s.Assessment.Level
	alertworthy := severity == threat.High || severity == threat.Critical

	d.mu.Lock()
	defer d.mu.Unlock()

	if s.RegionID != 0 {
		d.clearStreak[track] = 0
	} else {
		// Every sample outside restricted airspace advances the streak,
		// even an alertworthy one. Two in a row close the track's
		// zone-keyed episodes; an episode keyed outside any region only
		// closes once the score also drops.
		d.clearStreak[track]++
		if d.clearStreak[track] >= clearStreakTarget {
			d.clearStreak[track] = 0
			if err := d.resolveClearedLocked(ctx, track, !alertworthy); err != nil {
				return err
			}
		}
	}

	if !alertworthy {
		return nil
	}

	k := dedupKey{track: track, regionID: s.RegionID, severity: severity}
	if ep, ok := d.open[k]; ok {
		ep.lastSeen = s.Timestamp
		if err := d.Store.TouchAlert(ctx, ep.alertID, s.FlightID, s.Timestamp); err != nil {
			return err
		}
		return nil
	}

	alert := &db.Alert{
		FlightID:          s.FlightID,
		TransponderID:     track,
		RegionID:          s.RegionID,
		Severity:          string(severity),
		Message:           alertMessage(track, s.RegionID, severity),
		ThreatReasons:     s.Assessment.ReasonTexts(),
		RecommendedAction: s.Assessment.RecommendedAction,
		CreatedAt:         s.Timestamp,
		LastSeenAt:        s.Timestamp,
	}
	if err := d.Store.InsertAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist alert: %w", err)
	}

	d.open[k] = &openEpisode{alertID: alert.ID, lastSeen: s.Timestamp}
	monitoring.AlertsEmitted.Inc()
	d.Bus.Publish(Event{Type: EventAlert, Data: alert})
	return nil
}

// Resolve closes an episode by alert id, typically from the API. The
// episode state is dropped even if another component already resolved the
// row.
func (d *Deduper) Resolve(ctx context.Context, alertID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, ep := range d.open {
		if ep.alertID == alertID {
			return d.resolveLocked(ctx, k, ResolveManual)
		}
	}

	// Not tracked in memory (e.g. raised before a restart without Load);
	// resolve the row directly.
	changed, err := d.Store.ResolveAlert(ctx, alertID, d.Clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		// Already resolved; nothing to publish.
		return nil
	}
	monitoring.AlertsResolved.Inc()
	d.Bus.Publish(Event{Type: EventAlertResolved, Data: resolvedEvent{ID: alertID, Cause: ResolveManual}})
	return nil
}

// Start launches the idle sweep loop. Stop() terminates it.
func (d *Deduper) Start() {
	go func() {
		ticker := d.Clock.NewTicker(d.ScanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C():
				if err := d.ScanIdle(context.Background()); err != nil {
					monitoring.Logf("alert idle scan failed: %v", err)
				}
			case <-d.StopChan:
				return
			}
		}
	}()
}

// Stop signals the idle sweep loop to exit.
func (d *Deduper) Stop() {
	close(d.StopChan)
}

// ScanIdle auto-closes every episode whose track has been silent for the
// idle window. Exposed for tests.
func (d *Deduper) ScanIdle(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for k, ep := range d.open {
		if d.Clock.Since(ep.lastSeen) >= d.IdleWindow {
			if err := d.resolveLocked(ctx, k, ResolveIdle); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// resolveClearedLocked closes a track's open episodes after a clear streak.
// Episodes keyed to a region always close; episodes keyed outside any region
// (regionID 0) close only when includeOutside is set. Caller holds d.mu.
func (d *Deduper) resolveClearedLocked(ctx context.Context, track string, includeOutside bool) error {
	var firstErr error
	for k := range d.open {
		if k.track != track {
			continue
		}
		if k.regionID == 0 && !includeOutside {
			continue
		}
		if err := d.resolveLocked(ctx, k, ResolveCleared); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveLocked closes one episode: marks the row resolved, drops the
// in-memory state, and publishes the resolution. Caller holds d.mu.
func (d *Deduper) resolveLocked(ctx context.Context, k dedupKey, cause string) error {
	ep := d.open[k]
	delete(d.open, k)

	changed, err := d.Store.ResolveAlert(ctx, ep.alertID, d.Clock.Now())
	if errors.Is(err, db.ErrNotFound) {
		// Row swept by retention; state cleanup was still needed.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", ep.alertID, err)
	}
	if !changed {
		// Already resolved elsewhere; nothing to publish.
		return nil
	}

	monitoring.AlertsResolved.Inc()
	d.Bus.Publish(Event{Type: EventAlertResolved, Data: resolvedEvent{
		ID:            ep.alertID,
		TransponderID: k.track,
		Cause:         cause,
	}})
	return nil
}

func alertMessage(track string, regionID int64, severity threat.Level) string {
	if regionID != 0 {
		return fmt.Sprintf("%s threat: %s inside restricted region %d", severity, track, regionID)
	}
	return fmt.Sprintf("%s threat: %s", severity, track)
}
