package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createFeatureRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type linkFeatureRequest struct {
	ExperimentID string `json:"experiment_id"`
}

func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := s.services.Features.ListFeatures(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]featureResponse, 0, len(features))
	for _, f := range features {
		resp = append(resp, toFeatureResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateFeature(w http.ResponseWriter, r *http.Request) {
	var req createFeatureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.services.Features.CreateFeature(r.Context(), req.Name, req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeatureResponse(f))
}

func (s *Server) handleLinkFeature(w http.ResponseWriter, r *http.Request) {
	var req linkFeatureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.services.Features.LinkExperimentToFeature(r.Context(), req.ExperimentID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeatureResponse(f))
}

func (s *Server) handleUnlinkFeature(w http.ResponseWriter, r *http.Request) {
	f, err := s.services.Features.UnlinkExperimentFromFeature(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeatureResponse(f))
}
