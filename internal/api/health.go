package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the store probe so a hung backend cannot hang
// the health endpoint.
const healthCheckTimeout = 2 * time.Second

// Pinger reports backend reachability. The user store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// HandleHealth reports 200 when the store is reachable and 503 otherwise.
// The endpoint is public and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "health probe failed", "error", err)
			JSON(w, r, http.StatusServiceUnavailable, healthResponse{
				Status: "unhealthy",
				Store:  "unreachable",
			})
			return
		}
	}

	JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Store: "ok"})
}
