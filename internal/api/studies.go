package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Sanyam07/diego/model"
	"github.com/Sanyam07/diego/storage"
	"github.com/Sanyam07/diego/study"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listStudiesResponse wraps the paginated study listing.
type listStudiesResponse struct {
	Studies []*model.StudySummary `json:"studies"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// listTrialsResponse wraps a study's trial listing.
type listTrialsResponse struct {
	Study  string         `json:"study"`
	Trials []*model.Trial `json:"trials"`
	Total  int            `json:"total"`
}

func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	summaries, err := s.store.Summaries(r.Context())
	if err != nil {
		s.logger.Error("list studies", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list studies")
		return
	}

	total := len(summaries)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := summaries[offset:end]
	if page == nil {
		page = []*model.StudySummary{}
	}

	s.writeJSON(w, http.StatusOK, listStudiesResponse{
		Studies: page,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	summaries, err := s.store.Summaries(r.Context())
	if err != nil {
		s.logger.Error("get study", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get study")
		return
	}

	for _, sum := range summaries {
		if sum.Name == name {
			s.writeJSON(w, http.StatusOK, sum)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "study not found")
}

func (s *Server) handleListTrials(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	id, err := s.store.StudyIDFromName(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "study not found")
		return
	}
	if err != nil {
		s.logger.Error("resolve study", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve study")
		return
	}

	trials, err := s.store.Trials(r.Context(), id)
	if err != nil {
		s.logger.Error("list trials", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list trials")
		return
	}
	if trials == nil {
		trials = []*model.Trial{}
	}

	s.writeJSON(w, http.StatusOK, listTrialsResponse{
		Study:  name,
		Trials: trials,
		Total:  len(trials),
	})
}

func (s *Server) handleTrialsCSV(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	st, err := study.Load(r.Context(), name, study.Options{
		Store:  s.store,
		Logger: s.logger,
	})
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "study not found")
		return
	}
	if err != nil {
		s.logger.Error("load study for export", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load study")
		return
	}

	includeInternal := r.URL.Query().Get("internal") == "true"
	frame, err := st.TrialsFrame(r.Context(), includeInternal)
	if err != nil {
		s.logger.Error("build trials frame", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export trials")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`-trials.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := frame.WriteCSV(w); err != nil {
		s.logger.Error("write trials csv", "error", err)
	}
}

func (s *Server) handleBestTrial(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	id, err := s.store.StudyIDFromName(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "study not found")
		return
	}
	if err != nil {
		s.logger.Error("resolve study", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to resolve study")
		return
	}

	best, err := s.store.BestTrial(r.Context(), id)
	if errors.Is(err, storage.ErrNoCompletedTrials) {
		s.writeError(w, http.StatusNotFound, "no completed trials")
		return
	}
	if err != nil {
		s.logger.Error("get best trial", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get best trial")
		return
	}

	s.writeJSON(w, http.StatusOK, best)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
