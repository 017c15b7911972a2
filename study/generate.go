package study

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/model"
	"github.com/Sanyam07/diego/sampler"
)

// NewTrial allocates the next trial number in the store and appends a RUNNING
// trial handle to the study. Safe for concurrent callers; the store
// serializes number allocation.
func (s *Study) NewTrial(ctx context.Context, cand candidate.Candidate) (*Trial, error) {
	rec, err := s.store.CreateTrial(ctx, s.id)
	if err != nil {
		return nil, fmt.Errorf("create trial: %w", err)
	}

	t := &Trial{
		Number:    rec.Number,
		Candidate: cand,
		studyID:   s.id,
		store:     s.store,
	}

	s.mu.Lock()
	s.trials = append(s.trials, t)
	s.mu.Unlock()
	return t, nil
}

// GenerateTrials materializes one trial per generator. When the study has a
// sampler, it picks the creation order from the generators' parameter
// encodings and the history of completed trials; otherwise generators are
// taken in order. Each trial records its candidate name and parameters as
// system attributes.
func (s *Study) GenerateTrials(ctx context.Context, gens []candidate.Generator) ([]*Trial, error) {
	order := make([]int, len(gens))
	for i := range order {
		order[i] = i
	}

	if s.sampler != nil {
		proposals := make([][]float64, len(gens))
		for i, g := range gens {
			proposals[i] = g.Params
		}
		history, err := s.history(ctx)
		if err != nil {
			return nil, err
		}
		order = s.sampler.Pick(proposals, history)
		if len(order) != len(gens) {
			return nil, fmt.Errorf("sampler returned %d picks for %d proposals", len(order), len(gens))
		}
	}

	trials := make([]*Trial, 0, len(gens))
	for _, idx := range order {
		if idx < 0 || idx >= len(gens) {
			return nil, fmt.Errorf("sampler pick %d out of range", idx)
		}
		g := gens[idx]

		t, err := s.NewTrial(ctx, g.New())
		if err != nil {
			return nil, err
		}
		if err := s.store.SetTrialSystemAttr(ctx, t.Number, model.AttrCandidate, g.Name); err != nil {
			return nil, err
		}
		if len(g.Params) > 0 {
			if err := s.store.SetTrialSystemAttr(ctx, t.Number, model.AttrParams, encodeParams(g.Params)); err != nil {
				return nil, err
			}
		}
		trials = append(trials, t)
	}
	return trials, nil
}

// history collects completed trials that carry a parameter encoding, as
// sampler observations.
func (s *Study) history(ctx context.Context) ([]sampler.Observation, error) {
	records, err := s.store.Trials(ctx, s.id)
	if err != nil {
		return nil, err
	}

	var obs []sampler.Observation
	for _, rec := range records {
		if rec.State != model.StateComplete || rec.Value == nil {
			continue
		}
		encoded, ok := rec.SystemAttrs[model.AttrParams]
		if !ok {
			continue
		}
		params, err := decodeParams(encoded)
		if err != nil {
			continue
		}
		obs = append(obs, sampler.Observation{Params: params, Value: *rec.Value})
	}
	return obs, nil
}

// encodeParams renders a parameter vector as a comma-joined string for the
// params system attribute.
func encodeParams(params []float64) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// decodeParams parses a params system attribute back into a vector.
func decodeParams(encoded string) ([]float64, error) {
	parts := strings.Split(encoded, ",")
	params := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		params[i] = v
	}
	return params, nil
}
