package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/airspace.report/internal/db"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'resolved' parameter")
			return
		}
		resolved = &b
	}

	alerts, err := s.db.ListRecentAlerts(r.Context(), resolved, s.queryLimit(r))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list alerts: %v", err))
		return
	}
	if alerts == nil {
		alerts = []db.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.deduper.Resolve(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "open alert not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to resolve alert: %v", err))
		return
	}

	alert, err := s.db.GetAlert(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to load resolved alert: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}
