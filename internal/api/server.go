// Package api exposes the HTTP surface: telemetry ingest, flight and alert
// queries, region management, operator auth, and the WebSocket event feed.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/airspace.report/internal/alerting"
	"github.com/banshee-data/airspace.report/internal/auth"
	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/ingest"
)

// ANSI escape codes for request log coloring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db       *db.DB
	pipeline *ingest.Pipeline
	deduper  *alerting.Deduper
	bus      *alerting.Bus
	tokens   *auth.TokenIssuer
}

func NewServer(database *db.DB, pipeline *ingest.Pipeline, deduper *alerting.Deduper, bus *alerting.Bus, tokens *auth.TokenIssuer) *Server {
	return &Server{
		db:       database,
		pipeline: pipeline,
		deduper:  deduper,
		bus:      bus,
		tokens:   tokens,
	}
}

// ServeMux builds the route table. Everything outside register/login runs
// behind a session token; region mutation additionally requires the admin
// role.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	authed := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireAuth(h))
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	authed("GET /api/auth/me", s.me)

	authed("POST /api/flights", s.ingestTelemetry)
	authed("GET /api/flights", s.listFlights)
	authed("GET /api/flights/latest", s.latestFlights)
	authed("GET /api/flights/stats", s.flightStats)
	authed("GET /api/flights/{id}", s.getFlight)

	authed("GET /api/regions", s.listRegions)
	authed("GET /api/regions/active", s.activeRegions)
	mux.Handle("POST /api/regions", s.requireRole("admin", http.HandlerFunc(s.createRegion)))
	mux.Handle("POST /api/regions/{id}/toggle", s.requireRole("admin", http.HandlerFunc(s.toggleRegion)))
	mux.Handle("DELETE /api/regions/{id}", s.requireRole("admin", http.HandlerFunc(s.deleteRegion)))

	authed("GET /api/alerts", s.listAlerts)
	authed("POST /api/alerts/{id}/resolve", s.resolveAlert)

	mux.HandleFunc("GET /ws", s.serveWS)

	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer so http.ResponseController can reach
// Hijack during the WebSocket upgrade.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// pathID parses the {id} path value; writes a 400 and returns false on junk.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		s.writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
