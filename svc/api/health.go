package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cipherpaste/svc/util"
)

// Pinger is a backend that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready bool   `json:"ready"`
	Store string `json:"store"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: true, Store: "up"}
	if s.backend == nil {
		resp.Store = "none"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.backend.Ping(ctx); err != nil {
			util.Error().Err(err).Msg("store health check failed")
			resp.Store = "down"
			resp.Ready = false
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
