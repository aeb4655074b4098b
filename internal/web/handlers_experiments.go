package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/experiment"
)

type createExperimentRequest struct {
	Name                    string              `json:"name"`
	Description             *string             `json:"description"`
	Hypothesis              *string             `json:"hypothesis"`
	SuccessMetric           string              `json:"success_metric"`
	TrafficSplit            domain.TrafficSplit `json:"traffic_split"`
	Variants                []string            `json:"variants"`
	MinimumSampleSize       int64               `json:"minimum_sample_size"`
	SignificanceThreshold   float64             `json:"significance_threshold"`
	TestDurationDays        int64               `json:"test_duration_days"`
	BaselineRate            *float64            `json:"baseline_rate"`
	MinimumDetectableEffect *float64            `json:"minimum_detectable_effect"`
}

type updateExperimentRequest struct {
	Name                    *string  `json:"name"`
	Description             *string  `json:"description"`
	Hypothesis              *string  `json:"hypothesis"`
	SuccessMetric           *string  `json:"success_metric"`
	MinimumSampleSize       *int64   `json:"minimum_sample_size"`
	SignificanceThreshold   *float64 `json:"significance_threshold"`
	TestDurationDays        *int64   `json:"test_duration_days"`
	BaselineRate            *float64 `json:"baseline_rate"`
	MinimumDetectableEffect *float64 `json:"minimum_detectable_effect"`
}

type splitRequest struct {
	TrafficSplit domain.TrafficSplit `json:"traffic_split"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	var status *domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status = &st
	}

	experiments, err := s.services.Registry.List(r.Context(), status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]experimentResponse, 0, len(experiments))
	for _, e := range experiments {
		resp = append(resp, toExperimentResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	split := req.TrafficSplit
	if len(split) == 0 && len(req.Variants) > 0 {
		split = domain.EvenSplit(req.Variants)
	}

	e, err := s.services.Registry.Create(r.Context(), experiment.CreateInput{
		Name:                    req.Name,
		Description:             req.Description,
		Hypothesis:              req.Hypothesis,
		SuccessMetric:           req.SuccessMetric,
		TrafficSplit:            split,
		MinimumSampleSize:       req.MinimumSampleSize,
		SignificanceThreshold:   req.SignificanceThreshold,
		TestDurationDays:        req.TestDurationDays,
		BaselineRate:            req.BaselineRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExperimentResponse(e))
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExperimentResponse(e))
}

func (s *Server) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	var req updateExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err = s.services.Registry.UpdateDetails(r.Context(), e.ID, experiment.DetailsUpdate(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExperimentResponse(e))
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.Registry.Delete(r.Context(), e.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err = s.services.Registry.UpdateTrafficSplit(r.Context(), e.ID, req.TrafficSplit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExperimentResponse(e))
}

type transitionFunc func(ctx context.Context, id string) (*domain.Experiment, error)

func (s *Server) handleTransition(apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		e, err = apply(r.Context(), e.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toExperimentResponse(e))
	}
}

type concludeResponse struct {
	Experiment experimentResponse `json:"experiment"`
	Winner     *winnerResponse    `json:"winner"`
}

// handleConclude completes the experiment when the decision policy finds a
// winner. Without one the experiment is returned unchanged.
func (s *Server) handleConclude(w http.ResponseWriter, r *http.Request) {
	e, winner, err := s.services.Decisions.Conclude(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, concludeResponse{
		Experiment: toExperimentResponse(e),
		Winner:     toWinnerResponse(winner),
	})
}
