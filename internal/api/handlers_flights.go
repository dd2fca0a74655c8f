package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/ingest"
)

func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	var report ingest.Telemetry
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	flight, err := s.pipeline.Process(r.Context(), report)
	if errors.Is(err, ingest.ErrInvalidTelemetry) {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, ingest.ErrStorageUnavailable) {
		s.writeJSONError(w, http.StatusServiceUnavailable, "storage unavailable, report not recorded")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to process telemetry: %v", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, flight)
}

// queryLimit parses ?limit= with a default of 100, capped at 1000.
func (s *Server) queryLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}

func (s *Server) listFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.db.ListRecentFlights(r.Context(), s.queryLimit(r))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list flights: %v", err))
		return
	}
	if flights == nil {
		flights = []db.Flight{}
	}
	s.writeJSON(w, http.StatusOK, flights)
}

func (s *Server) latestFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.db.LatestFlights(r.Context(), s.queryLimit(r))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list latest flights: %v", err))
		return
	}
	if flights == nil {
		flights = []db.Flight{}
	}
	s.writeJSON(w, http.StatusOK, flights)
}

func (s *Server) getFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	flight, err := s.db.GetFlight(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "flight not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to get flight: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, flight)
}

func (s *Server) flightStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to compute stats: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
