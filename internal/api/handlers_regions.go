package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/geo"
)

type createRegionRequest struct {
	Name        string `json:"name"`
	PolygonJSON string `json:"polygon_json"`

	// Polygon accepts the geometry as an inline GeoJSON object instead of a
	// serialized string.
	Polygon json.RawMessage `json:"polygon"`
}

func (req createRegionRequest) polygon() string {
	if req.PolygonJSON != "" {
		return req.PolygonJSON
	}
	return string(req.Polygon)
}

func (s *Server) createRegion(w http.ResponseWriter, r *http.Request) {
	var req createRegionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeJSONError(w, http.StatusBadRequest, "region name is required")
		return
	}

	region, err := s.db.CreateRegion(r.Context(), req.Name, req.polygon(), time.Now())
	if errors.Is(err, geo.ErrMalformedGeometry) {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to create region: %v", err))
		return
	}

	s.pipeline.InvalidateRegions()
	s.writeJSON(w, http.StatusCreated, region)
}

func (s *Server) listRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.db.ListRegions(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list regions: %v", err))
		return
	}
	if regions == nil {
		regions = []db.Region{}
	}
	s.writeJSON(w, http.StatusOK, regions)
}

func (s *Server) activeRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.db.ActiveRegions(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list active regions: %v", err))
		return
	}
	if regions == nil {
		regions = []db.Region{}
	}
	s.writeJSON(w, http.StatusOK, regions)
}

func (s *Server) toggleRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	region, err := s.db.ToggleRegion(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "region not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to toggle region: %v", err))
		return
	}

	s.pipeline.InvalidateRegions()
	s.writeJSON(w, http.StatusOK, region)
}

func (s *Server) deleteRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	err := s.db.DeleteRegion(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "region not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to delete region: %v", err))
		return
	}

	s.pipeline.InvalidateRegions()
	w.WriteHeader(http.StatusNoContent)
}
