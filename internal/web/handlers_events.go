package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/experiment"
)

const defaultEventLimit = 100

type trackEventRequest struct {
	UserID     string          `json:"user_id"`
	Variant    string          `json:"variant"`
	EventType  string          `json:"event_type"`
	EventValue *float64        `json:"event_value"`
	SessionID  *string         `json:"session_id"`
	Metadata   domain.Metadata `json:"metadata"`
}

// handleGetVariant serves both /experiments/{id}/variant and /variant/{key};
// the latter also accepts feature names.
func (s *Server) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	if key == "" {
		key = chi.URLParam(r, "key")
	}

	a, err := s.services.Assigner.GetVariant(r.Context(), key, r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{
		ExperimentID: a.ExperimentID,
		UserID:       a.UserID,
		Variant:      a.Variant,
		AssignedAt:   a.AssignedAt,
	})
}

func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var req trackEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.services.Tracker.TrackEvent(r.Context(), experiment.TrackEventInput{
		ExperimentID: chi.URLParam(r, "id"),
		UserID:       req.UserID,
		Variant:      req.Variant,
		EventType:    req.EventType,
		EventValue:   req.EventValue,
		SessionID:    req.SessionID,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.services.Tracker.ListEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
