package api

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.stats.Stats()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workers:       st.Workers,
		QueueDepth:    st.Queued,
		InFlight:      st.InFlight,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Dispatch: s.stats.Stats()}
	if s.targets != nil {
		resp.Targets = len(s.targets.Names())
	}
	if s.limiters != nil {
		resp.Limiters = s.limiters.Len()
	}
	if s.events != nil {
		resp.Subscribers = s.events.Subscribers()
		resp.Dropped = s.events.Dropped()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	resp := TargetsResponse{Targets: []string{}}
	if s.targets != nil {
		resp.Targets = s.targets.Names()
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
