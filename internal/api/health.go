package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Store  string `json:"store"`
	Stream *int   `json:"streamClients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, storeStatus, code := "ok", "connected", http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status, storeStatus, code = "degraded", "disconnected", http.StatusServiceUnavailable
		s.log.Warnf("health: store ping failed: %v", err)
	}

	svc := healthServices{Store: storeStatus}
	if s.hub != nil {
		n := s.hub.Clients()
		svc.Stream = &n
	}

	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Services:  svc,
	})
}
