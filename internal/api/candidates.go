package api

import "net/http"

// listCandidatesResponse is the JSON response for GET /v1/candidates.
type listCandidatesResponse struct {
	Candidates []string `json:"candidates"`
}

func (s *Server) handleListCandidates(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, listCandidatesResponse{
		Candidates: s.registry.Names(),
	})
}
