package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"ipcollector/internal/editor"
)

func (s *Server) getRecords(w http.ResponseWriter, r *http.Request) {
	views, err := s.editor.Records(r.Context())
	if err != nil {
		log.Error("Failed to load collected IPs", "error", err)
		writeError(w, "Failed to load collected IPs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getCIDRText(w http.ResponseWriter, r *http.Request) {
	text, err := s.editor.CIDRText(r.Context())
	if err != nil {
		log.Error("Failed to build CIDR list", "error", err)
		writeError(w, "Failed to load collected IPs", http.StatusInternalServerError)
		return
	}
	if text != "" {
		log.Info("Copied IPs with CIDR", "text", text)
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		writeError(w, "Missing IP", http.StatusBadRequest)
		return
	}

	if err := s.editor.DeleteRecord(r.Context(), ip); err != nil {
		log.Error("Failed to delete IP", "ip", ip, "error", err)
		writeError(w, "Failed to delete IP", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearRecords(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	err := s.editor.ClearRecords(r.Context(), confirmed)
	if errors.Is(err, editor.ErrNotConfirmed) {
		writeError(w, "Clearing all IPs requires confirm=true", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error("Failed to clear IPs", "error", err)
		writeError(w, "Failed to clear IPs", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
