package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/stats"
)

type sampleSizeRequest struct {
	BaselineRate            float64  `json:"baseline_rate"`
	MinimumDetectableEffect float64  `json:"minimum_detectable_effect"`
	Alpha                   *float64 `json:"alpha"`
	Power                   float64  `json:"power"`
	Tails                   int      `json:"tails"`
	Arms                    int      `json:"arms"`
	Adjustment              string   `json:"adjustment"`
}

// handleCalculateStatistics recomputes and stores the statistics snapshot.
func (s *Server) handleCalculateStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.calculator.CalculateStatistics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsResponse(st, true))
}

func (s *Server) handleLatestStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.services.Engine.LatestStatistics(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if st == nil {
		s.writeError(w, r, &domain.NotFoundError{Entity: "statistics", Key: id})
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsResponse(st, false))
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	d, err := s.services.Decisions.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

type winnerEnvelope struct {
	ExperimentID string          `json:"experiment_id"`
	Winner       *winnerResponse `json:"winner"`
}

// handleWinner reports the declared winner, or null when there is none yet.
func (s *Server) handleWinner(w http.ResponseWriter, r *http.Request) {
	exp, err := s.services.Registry.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	winner, err := s.calculator.DetectWinner(r.Context(), exp.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, winnerEnvelope{ExperimentID: exp.ID, Winner: toWinnerResponse(winner)})
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rb, err := s.services.Allocator.RebalanceTraffic(r.Context(), chi.URLParam(r, "id"), apply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRebalanceResponse(rb))
}

func (s *Server) handleSampleSize(w http.ResponseWriter, r *http.Request) {
	var req sampleSizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	adjustment, err := stats.ParseAdjustment(req.Adjustment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	arms := req.Arms
	if arms == 0 {
		arms = 2
	}
	if arms < 2 {
		s.writeError(w, r, domain.NewValidationError("arms", "must be at least 2"))
		return
	}
	alpha := s.baseAlpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	plan, err := stats.SampleSize(stats.SampleSizeInput{
		BaselineRate:            req.BaselineRate,
		MinimumDetectableEffect: req.MinimumDetectableEffect,
		Alpha:                   alpha,
		Power:                   req.Power,
		Tails:                   req.Tails,
		MultipleComparisons:     arms - 1,
		Adjustment:              adjustment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSampleSizeResponse(plan, arms))
}
