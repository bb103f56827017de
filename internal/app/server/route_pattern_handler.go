package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"ipcollector/internal/editor"
)

type patternsResponse struct {
	Text     string   `json:"text"`
	Patterns []string `json:"patterns"`
}

type patternTextRequest struct {
	Text string `json:"text"`
}

type addPatternRequest struct {
	Text    string `json:"text"`
	Pattern string `json:"pattern"`
}

func writePatternError(w http.ResponseWriter, err error) bool {
	var invalid *editor.InvalidPatternError
	if !errors.As(err, &invalid) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":   invalid.Error(),
		"pattern": invalid.Pattern,
	})
	return true
}

func (s *Server) getPatterns(w http.ResponseWriter, r *http.Request) {
	text, err := s.editor.Patterns(r.Context())
	if err != nil {
		log.Error("Failed to load patterns", "error", err)
		writeError(w, "Failed to load patterns", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patternsResponse{Text: text, Patterns: editor.SplitPatterns(text)})
}

func (s *Server) savePatterns(w http.ResponseWriter, r *http.Request) {
	var req patternTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := s.editor.SavePatterns(r.Context(), req.Text)
	if err != nil {
		if writePatternError(w, err) {
			return
		}
		log.Error("Failed to save patterns", "error", err)
		writeError(w, "Failed to save patterns", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, patternsResponse{Text: strings.Join(saved, "\n"), Patterns: saved})
}

func validatePattern(w http.ResponseWriter, r *http.Request) {
	var req addPatternRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := editor.ValidatePattern(req.Pattern); err != nil {
		writePatternError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func addPattern(w http.ResponseWriter, r *http.Request) {
	var req addPatternRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	text, err := editor.AddPattern(req.Text, req.Pattern)
	if err != nil {
		writePatternError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patternTextRequest{Text: text})
}
