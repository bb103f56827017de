package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"ipcollector/internal/auth"
	"ipcollector/internal/domain"
	"ipcollector/internal/editor"
)

const maxBodyBytes = 1 << 20

// Observer is the part of the collector the API feeds.
type Observer interface {
	Observe(ctx context.Context, obs domain.Observation) error
	HandleLifecycle(ctx context.Context, reason string) error
}

type Server struct {
	observer Observer
	editor   *editor.Editor
	auth     *auth.Authenticator
}

func New(observer Observer, ed *editor.Editor, authenticator *auth.Authenticator) *Server {
	return &Server{observer: observer, editor: ed, auth: authenticator}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	protect := func(h http.HandlerFunc) http.Handler {
		return s.auth.RequireAuth(h)
	}

	router := http.NewServeMux()
	router.HandleFunc("GET /version", getVersion)

	router.Handle("POST /observations", protect(s.postObservation))
	router.Handle("POST /lifecycle", protect(s.postLifecycle))

	router.Handle("GET /patterns", protect(s.getPatterns))
	router.Handle("PUT /patterns", protect(s.savePatterns))
	router.Handle("POST /patterns/validate", protect(validatePattern))
	router.Handle("POST /patterns/add", protect(addPattern))

	router.Handle("GET /records", protect(s.getRecords))
	router.Handle("GET /records/cidr", protect(s.getCIDRText))
	router.Handle("DELETE /records/{ip}", protect(s.deleteRecord))
	router.Handle("DELETE /records", protect(s.clearRecords))

	return enableCORS(router)
}

// Serve listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, port int) error {
	if !s.auth.Enabled() {
		log.Warn("API authentication disabled", "env", auth.SecretEnv)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting ipcollector API on port :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	log.Debug("API server stopped")
	return nil
}
