package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/session"
)

// StatusSource is what the status server reports on.
type StatusSource interface {
	Ready() bool
	Snapshot() session.Snapshot
}

// StatusService provides the HTTP health, readiness and state endpoints.
type StatusService struct {
	cfg    *config.Config
	source StatusSource
	server *http.Server
}

// NewStatusService creates a new StatusService.
func NewStatusService(cfg *config.Config, source StatusSource) *StatusService {
	return &StatusService{
		cfg:    cfg,
		source: source,
	}
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Status.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the status endpoints.
func (s *StatusService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready once commands reach a host, or always in control mode none
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.source.Ready() {
			snap := s.source.Snapshot()
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":     "not_ready",
				"connection": snap.Connection.String(),
				"reconnect":  snap.Reconnect.String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.source.Snapshot())
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write status response")
	}
}

func (s *StatusService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Status.Host, s.cfg.Status.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Status server error")
	}
}
