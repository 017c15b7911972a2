package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	TotalStudies  int            `json:"total_studies"`
	TotalTrials   int            `json:"total_trials"`
	ByState       map[string]int `json:"by_state"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		TotalStudies:  stats.TotalStudies,
		TotalTrials:   stats.TotalTrials,
		ByState:       stats.CountByState,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
