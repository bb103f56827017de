package server

import (
	"net/http"

	"github.com/charmbracelet/log"

	"ipcollector/internal/domain"
)

func (s *Server) postObservation(w http.ResponseWriter, r *http.Request) {
	var obs domain.Observation
	if !decodeJSON(w, r, &obs) {
		return
	}

	switch obs.Event {
	case "":
		obs.Event = domain.ObservationCompleted
	case domain.ObservationCompleted, domain.ObservationFailed:
	default:
		writeError(w, "Unknown event type", http.StatusBadRequest)
		return
	}

	if err := s.observer.Observe(r.Context(), obs); err != nil {
		log.Error("Failed to process observation", "url", obs.URL, "error", err)
		writeError(w, "Failed to process observation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type lifecycleRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) postLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.observer.HandleLifecycle(r.Context(), req.Reason); err != nil {
		log.Error("Failed to handle lifecycle event", "reason", req.Reason, "error", err)
		writeError(w, "Failed to reload collected IPs", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
