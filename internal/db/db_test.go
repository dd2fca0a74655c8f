package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/airspace.report/internal/predict"
	"github.com/banshee-data/airspace.report/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func strPtr(s string) *string { return &s }

func sampleFlight(tid *string, ts time.Time) *Flight {
	return &Flight{
		TransponderID:  tid,
		Timestamp:      ts,
		Latitude:       11.65,
		Longitude:      78.15,
		Altitude:       12000,
		Groundspeed:    250,
		Track:          90,
		IsUnknown:      tid == nil,
		Classification: "airliner",
		AircraftModel:  "Boeing 737 / Airbus A320",
		ThreatLevel:    "Low",
		ThreatScore:    0,
		PredictedTrajectory: []predict.Sample{
			{Latitude: 11.65, Longitude: 78.15, OffsetSeconds: 0},
			{Latitude: 11.65, Longitude: 78.16, OffsetSeconds: 30},
		},
		DetectionConfidence: 88.5,
		SignalStrength:      74.2,
		WeatherCondition:    "Clear",
	}
}

func TestInsertAndGetFlight(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := sampleFlight(strPtr("VT-ABC"), ts)
	if err := database.InsertFlight(ctx, f); err != nil {
		t.Fatalf("InsertFlight failed: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("expected flight id to be assigned")
	}

	got, err := database.GetFlight(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFlight failed: %v", err)
	}
	if diff := cmp.Diff(f, got); diff != "" {
		t.Errorf("flight mismatch (-want +got):\n%s", diff)
	}
}

func TestGetFlightNotFound(t *testing.T) {
	database := newTestDB(t)

	_, err := database.GetFlight(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestFlightsCollapsesPerTransponder(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Three samples for VT-ABC, two for an unidentified track, one for VT-XYZ.
	for i := 0; i < 3; i++ {
		f := sampleFlight(strPtr("VT-ABC"), base.Add(time.Duration(i)*time.Minute))
		if err := database.InsertFlight(ctx, f); err != nil {
			t.Fatalf("InsertFlight failed: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		f := sampleFlight(nil, base.Add(time.Duration(i)*time.Minute))
		if err := database.InsertFlight(ctx, f); err != nil {
			t.Fatalf("InsertFlight failed: %v", err)
		}
	}
	xyz := sampleFlight(strPtr("VT-XYZ"), base)
	if err := database.InsertFlight(ctx, xyz); err != nil {
		t.Fatalf("InsertFlight failed: %v", err)
	}

	latest, err := database.LatestFlights(ctx, 50)
	if err != nil {
		t.Fatalf("LatestFlights failed: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("expected 3 latest flights, got %d", len(latest))
	}

	for _, f := range latest {
		if f.TransponderID != nil && *f.TransponderID == "VT-ABC" {
			if want := base.Add(2 * time.Minute); !f.Timestamp.Equal(want) {
				t.Errorf("VT-ABC latest timestamp = %v, want %v", f.Timestamp, want)
			}
		}
	}
}

func TestListRecentFlightsOrder(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		f := sampleFlight(strPtr("VT-ABC"), base.Add(time.Duration(i)*time.Minute))
		if err := database.InsertFlight(ctx, f); err != nil {
			t.Fatalf("InsertFlight failed: %v", err)
		}
	}

	flights, err := database.ListRecentFlights(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecentFlights failed: %v", err)
	}
	if len(flights) != 3 {
		t.Fatalf("expected 3 flights, got %d", len(flights))
	}
	for i := 1; i < len(flights); i++ {
		if flights[i].Timestamp.After(flights[i-1].Timestamp) {
			t.Errorf("flights not in newest-first order at index %d", i)
		}
	}
}

const testPolygon = `{"type":"Polygon","coordinates":[[[78.10,11.70],[78.20,11.70],[78.20,11.60],[78.10,11.60],[78.10,11.70]]]}`

func TestRegionLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r, err := database.CreateRegion(ctx, "Salem Test Zone", testPolygon, now)
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	if !r.IsActive {
		t.Error("new region should be active")
	}

	active, err := database.ActiveRegions(ctx)
	if err != nil {
		t.Fatalf("ActiveRegions failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active region, got %d", len(active))
	}

	toggled, err := database.ToggleRegion(ctx, r.ID)
	if err != nil {
		t.Fatalf("ToggleRegion failed: %v", err)
	}
	if toggled.IsActive {
		t.Error("toggled region should be inactive")
	}

	active, err = database.ActiveRegions(ctx)
	if err != nil {
		t.Fatalf("ActiveRegions failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected 0 active regions after toggle, got %d", len(active))
	}

	if err := database.DeleteRegion(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}
	if err := database.DeleteRegion(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting twice: expected ErrNotFound, got %v", err)
	}
}

func TestCreateRegionRejectsBadPolygon(t *testing.T) {
	database := newTestDB(t)

	_, err := database.CreateRegion(context.Background(), "bad", `{"type":"Point","coordinates":[1,2]}`, time.Now())
	if err == nil {
		t.Fatal("expected error for non-polygon geometry")
	}
}

func TestAlertLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f := sampleFlight(strPtr("VT-ABC"), now)
	if err := database.InsertFlight(ctx, f); err != nil {
		t.Fatalf("InsertFlight failed: %v", err)
	}

	a := &Alert{
		FlightID:          f.ID,
		TransponderID:     "VT-ABC",
		RegionID:          1,
		Severity:          "Critical",
		Message:           "Critical threat: VT-ABC in restricted zone",
		ThreatReasons:     []string{"Inside restricted zone", "No transponder signal"},
		RecommendedAction: "activate response protocol",
		CreatedAt:         now,
		LastSeenAt:        now,
	}
	if err := database.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	open, err := database.OpenAlerts(ctx)
	if err != nil {
		t.Fatalf("OpenAlerts failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(open))
	}
	if diff := cmp.Diff(a, &open[0]); diff != "" {
		t.Errorf("alert mismatch (-want +got):\n%s", diff)
	}

	changed, err := database.ResolveAlert(ctx, a.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}
	if !changed {
		t.Error("first resolve should report a transition")
	}

	// Resolving again is a no-op, not an error.
	changed, err = database.ResolveAlert(ctx, a.ID, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second ResolveAlert failed: %v", err)
	}
	if changed {
		t.Error("second resolve should be a no-op")
	}

	if _, err := database.ResolveAlert(ctx, 9999, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}

	resolved := true
	list, err := database.ListRecentAlerts(ctx, &resolved, 10)
	if err != nil {
		t.Fatalf("ListRecentAlerts failed: %v", err)
	}
	if len(list) != 1 || !list[0].Resolved {
		t.Errorf("expected 1 resolved alert, got %+v", list)
	}

	unresolved := false
	list, err = database.ListRecentAlerts(ctx, &unresolved, 10)
	if err != nil {
		t.Fatalf("ListRecentAlerts failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no unresolved alerts, got %d", len(list))
	}
}

func TestTouchAlertRefreshesLastSeen(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f := sampleFlight(strPtr("VT-ABC"), now)
	if err := database.InsertFlight(ctx, f); err != nil {
		t.Fatalf("InsertFlight failed: %v", err)
	}
	a := &Alert{
		FlightID: f.ID, TransponderID: "VT-ABC", Severity: "High",
		Message: "m", ThreatReasons: []string{}, RecommendedAction: "monitor and contact via radio",
		CreatedAt: now, LastSeenAt: now,
	}
	if err := database.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	f2 := sampleFlight(strPtr("VT-ABC"), now.Add(30*time.Second))
	if err := database.InsertFlight(ctx, f2); err != nil {
		t.Fatalf("InsertFlight failed: %v", err)
	}
	if err := database.TouchAlert(ctx, a.ID, f2.ID, now.Add(30*time.Second)); err != nil {
		t.Fatalf("TouchAlert failed: %v", err)
	}

	got, err := database.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.FlightID != f2.ID {
		t.Errorf("flight id = %d, want %d", got.FlightID, f2.ID)
	}
	if want := now.Add(30 * time.Second); !got.LastSeenAt.Equal(want) {
		t.Errorf("last seen = %v, want %v", got.LastSeenAt, want)
	}
}

func TestCreateOperatorConflict(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := database.CreateOperator(ctx, "ops@example.com", "hash", "admin", now); err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}
	_, err := database.CreateOperator(ctx, "ops@example.com", "hash2", "analyst", now)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	op, err := database.GetOperatorByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("GetOperatorByEmail failed: %v", err)
	}
	if op.Role != "admin" {
		t.Errorf("role = %q, want admin", op.Role)
	}
	if _, err := database.GetOperatorByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRetentionSweep(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Flight inside the window, flight outside it.
	fresh := sampleFlight(strPtr("VT-NEW"), now.Add(-time.Hour))
	stale := sampleFlight(strPtr("VT-OLD"), now.Add(-48*time.Hour))
	for _, f := range []*Flight{fresh, stale} {
		if err := database.InsertFlight(ctx, f); err != nil {
			t.Fatalf("InsertFlight failed: %v", err)
		}
	}

	// Resolved alert past the window, open alert even older.
	staleResolved := &Alert{
		FlightID: stale.ID, TransponderID: "VT-OLD", Severity: "High",
		Message: "old", ThreatReasons: []string{}, RecommendedAction: "monitor and contact via radio",
		Resolved:  true,
		CreatedAt: now.Add(-40 * 24 * time.Hour), LastSeenAt: now.Add(-40 * 24 * time.Hour),
	}
	ancientOpen := &Alert{
		FlightID: stale.ID, TransponderID: "VT-OLD", Severity: "Critical",
		Message: "still open", ThreatReasons: []string{}, RecommendedAction: "activate response protocol",
		CreatedAt: now.Add(-90 * 24 * time.Hour), LastSeenAt: now.Add(-90 * 24 * time.Hour),
	}
	for _, a := range []*Alert{staleResolved, ancientOpen} {
		if err := database.InsertAlert(ctx, a); err != nil {
			t.Fatalf("InsertAlert failed: %v", err)
		}
	}

	w := NewRetentionWorker(database, 24*time.Hour, 30*24*time.Hour)
	w.Clock = timeutil.NewMockClock(now)
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	flights, err := database.ListRecentFlights(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentFlights failed: %v", err)
	}
	if len(flights) != 1 || *flights[0].TransponderID != "VT-NEW" {
		t.Errorf("expected only the fresh flight to remain, got %+v", flights)
	}

	alerts, err := database.ListRecentAlerts(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListRecentAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert to remain, got %d", len(alerts))
	}
	if alerts[0].Resolved {
		t.Error("the surviving alert should be the unresolved one")
	}
}

func TestStats(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	scores := []struct {
		score int
		level string
	}{
		{0, "Low"}, {50, "High"}, {50, "High"}, {100, "Critical"},
	}
	for i, sc := range scores {
		f := sampleFlight(strPtr("VT-ABC"), now.Add(time.Duration(i)*time.Minute))
		f.ThreatScore = sc.score
		f.ThreatLevel = sc.level
		if err := database.InsertFlight(ctx, f); err != nil {
			t.Fatalf("InsertFlight failed: %v", err)
		}
	}

	s, err := database.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if s.TotalFlights != 4 {
		t.Errorf("total = %d, want 4", s.TotalFlights)
	}
	if s.ByThreatLevel["High"] != 2 {
		t.Errorf("High count = %d, want 2", s.ByThreatLevel["High"])
	}
	if s.MeanThreatScore != 50 {
		t.Errorf("mean = %v, want 50", s.MeanThreatScore)
	}
}

func TestMigrateVersionFresh(t *testing.T) {
	database := newTestDB(t)

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}
}
