package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/airspace.report/internal/alerting"
)

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) alerting.Event {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}
	var ev alerting.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	return ev
}

func TestWSRequiresToken(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 handshake response, got %+v", resp)
	}
}

func TestWSStreamsEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	token := f.registerAndLogin(t, "ops@example.com", "admin")
	conn := dialWS(t, ts, token)

	// Give the subscriber a moment to attach before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for f.bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	rec := f.do(t, "POST", "/api/flights", token, map[string]any{
		"transponder_id": "VT-ABC",
		"latitude":       12.50, "longitude": 79.00,
		"altitude": 35000.0, "groundspeed": 300.0, "track": 90.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body)
	}

	ev := readEvent(t, conn)
	if ev.Type != alerting.EventTrackUpdate {
		t.Errorf("event type = %q, want track_update", ev.Type)
	}
}

func TestWSReceivesAlertBeforeTrackUpdate(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	token := f.registerAndLogin(t, "admin@example.com", "admin")

	rec := f.do(t, "POST", "/api/regions", token,
		map[string]any{"name": "Salem", "polygon": json.RawMessage(salemPolygon)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create region returned %d: %s", rec.Code, rec.Body)
	}

	conn := dialWS(t, ts, token)
	deadline := time.Now().Add(2 * time.Second)
	for f.bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	rec = f.do(t, "POST", "/api/flights", token, map[string]any{
		"latitude": 11.65, "longitude": 78.15,
		"altitude": 1000.0, "groundspeed": 650.0, "track": 180.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body)
	}

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	if first.Type != alerting.EventAlert || second.Type != alerting.EventTrackUpdate {
		t.Errorf("event order = %q, %q; want alert, track_update", first.Type, second.Type)
	}
}
