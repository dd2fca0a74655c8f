package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/threat"
	"github.com/banshee-data/airspace.report/internal/timeutil"
)

func newDedupFixture(t *testing.T) (*Deduper, *db.DB, *Subscription, *timeutil.MockClock) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	bus := NewBus(64, 16)
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	d := NewDeduper(database, bus, 120*time.Second)
	d.Clock = clock

	sub := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(sub.ID) })

	return d, database, sub, clock
}

func strPtr(s string) *string { return &s }

func intrusionSample(flightID int64, tid *string, regionID int64, ts time.Time) Sample {
	return Sample{
		FlightID:      flightID,
		TransponderID: tid,
		RegionID:      regionID,
		Assessment: threat.Assess(threat.Input{
			InRestrictedArea: true,
			HasTransponder:   tid != nil,
			Classification:   "airliner",
			GroundspeedKt:    250,
			AltitudeFt:       3000,
		}),
		Timestamp: ts,
	}
}

func clearSample(flightID int64, tid *string, ts time.Time) Sample {
	return Sample{
		FlightID:      flightID,
		TransponderID: tid,
		RegionID:      0,
		Assessment: threat.Assess(threat.Input{
			HasTransponder: tid != nil,
			Classification: "airliner",
			GroundspeedKt:  250,
			AltitudeFt:     12000,
		}),
		Timestamp: ts,
	}
}

func insertFlight(t *testing.T, database *db.DB, tid *string, ts time.Time) int64 {
	t.Helper()
	f := &db.Flight{
		TransponderID: tid, Timestamp: ts,
		Latitude: 11.65, Longitude: 78.15, Altitude: 12000,
		Groundspeed: 250, Track: 90,
		Classification: "airliner", ThreatLevel: "High", ThreatScore: 50,
	}
	require.NoError(t, database.InsertFlight(context.Background(), f))
	return f.ID
}

func TestRepeatedIntrusionRaisesOneAlert(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	// Ten samples of the same track, region, and severity.
	for i := 0; i < 10; i++ {
		ts := clock.Now().Add(time.Duration(i) * 5 * time.Second)
		fid := insertFlight(t, database, tid, ts)
		require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, ts)))
	}

	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "VT-ABC", open[0].TransponderID)
	assert.Equal(t, "High", open[0].Severity)

	// Exactly one alert event on the bus.
	ev := <-sub.Events
	assert.Equal(t, EventAlert, ev.Type)
	assert.Empty(t, sub.Events)

	// last_seen tracked the newest sample.
	assert.Equal(t, clock.Now().Add(45*time.Second), open[0].LastSeenAt)
}

func TestSeverityChangeStartsNewEpisode(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))

	// Same track and region but now without a transponder signal in the
	// assessment, pushing the score to Critical.
	s := intrusionSample(fid, tid, 1, clock.Now().Add(5*time.Second))
	s.Assessment = threat.Assess(threat.Input{
		InRestrictedArea: true,
		HasTransponder:   false,
		Classification:   "airliner",
		GroundspeedKt:    250,
		AltitudeFt:       3000,
	})
	require.NoError(t, d.Process(ctx, s))

	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	assert.Equal(t, EventAlert, (<-sub.Events).Type)
	assert.Equal(t, EventAlert, (<-sub.Events).Type)
}

func TestUnknownTracksKeyedPerRegion(t *testing.T) {
	d, database, _, clock := newDedupFixture(t)
	ctx := context.Background()

	fid := insertFlight(t, database, nil, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, nil, 1, clock.Now())))
	require.NoError(t, d.Process(ctx, intrusionSample(fid, nil, 2, clock.Now())))
	require.NoError(t, d.Process(ctx, intrusionSample(fid, nil, 1, clock.Now())))

	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "UNKNOWN-1", open[0].TransponderID)
	assert.Equal(t, "UNKNOWN-2", open[1].TransponderID)
}

func TestClearStreakAutoCloses(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))
	<-sub.Events // alert

	// One clear sample is not enough.
	require.NoError(t, d.Process(ctx, clearSample(fid, tid, clock.Now().Add(5*time.Second))))
	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// The second consecutive clear sample closes the episode.
	require.NoError(t, d.Process(ctx, clearSample(fid, tid, clock.Now().Add(10*time.Second))))
	open, err = database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	ev := <-sub.Events
	require.Equal(t, EventAlertResolved, ev.Type)
	resolved := ev.Data.(resolvedEvent)
	assert.Equal(t, ResolveCleared, resolved.Cause)
	assert.Equal(t, "VT-ABC", resolved.TransponderID)
}

func TestZoneExitClosesEpisodeWhileStillElevated(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))
	require.Equal(t, EventAlert, (<-sub.Events).Type)

	// The track leaves the zone but keeps scoring High on other factors.
	// Two such samples close the zone-keyed episode; the episode they open
	// outside any region stays until the score itself drops.
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 0, clock.Now().Add(5*time.Second))))
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 0, clock.Now().Add(10*time.Second))))

	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(0), open[0].RegionID)

	require.Equal(t, EventAlert, (<-sub.Events).Type)
	ev := <-sub.Events
	require.Equal(t, EventAlertResolved, ev.Type)
	assert.Equal(t, ResolveCleared, ev.Data.(resolvedEvent).Cause)
}

func TestIntrusionResetsClearStreak(t *testing.T) {
	d, database, _, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))
	require.NoError(t, d.Process(ctx, clearSample(fid, tid, clock.Now().Add(5*time.Second))))
	// Back inside: the streak resets.
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now().Add(10*time.Second))))
	require.NoError(t, d.Process(ctx, clearSample(fid, tid, clock.Now().Add(15*time.Second))))

	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestIdleScanAutoCloses(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))
	<-sub.Events // alert

	// Just under the idle window: nothing happens.
	clock.Advance(119 * time.Second)
	require.NoError(t, d.ScanIdle(ctx))
	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	clock.Advance(2 * time.Second)
	require.NoError(t, d.ScanIdle(ctx))
	open, err = database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	ev := <-sub.Events
	require.Equal(t, EventAlertResolved, ev.Type)
	assert.Equal(t, ResolveIdle, ev.Data.(resolvedEvent).Cause)
}

func TestManualResolve(t *testing.T) {
	d, database, sub, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))
	ev := <-sub.Events
	alertID := ev.Data.(*db.Alert).ID

	require.NoError(t, d.Resolve(ctx, alertID))

	ev = <-sub.Events
	require.Equal(t, EventAlertResolved, ev.Type)
	assert.Equal(t, ResolveManual, ev.Data.(resolvedEvent).Cause)

	// The same track intruding again starts a fresh episode.
	fid2 := insertFlight(t, database, tid, clock.Now().Add(time.Minute))
	require.NoError(t, d.Process(ctx, intrusionSample(fid2, tid, 1, clock.Now().Add(time.Minute))))
	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.NotEqual(t, alertID, open[0].ID)
}

func TestLoadRestoresEpisodes(t *testing.T) {
	d, database, _, clock := newDedupFixture(t)
	ctx := context.Background()
	tid := strPtr("VT-ABC")

	fid := insertFlight(t, database, tid, clock.Now())
	require.NoError(t, d.Process(ctx, intrusionSample(fid, tid, 1, clock.Now())))

	// Simulate a restart: a fresh deduper over the same database.
	d2 := NewDeduper(database, NewBus(8, 4), 120*time.Second)
	d2.Clock = clock
	require.NoError(t, d2.Load(ctx))

	// The restored episode suppresses a duplicate.
	require.NoError(t, d2.Process(ctx, intrusionSample(fid, tid, 1, clock.Now().Add(5*time.Second))))
	open, err := database.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
