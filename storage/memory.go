package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sanyam07/diego/dataset"
	"github.com/Sanyam07/diego/model"
)

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with mutex-guarded maps. It is the default
// backend and is safe for concurrent workers. Records live for the store's
// lifetime; reads return copies so callers never share mutable state.
type MemoryStore struct {
	mu            sync.RWMutex
	studies       map[string]*model.Study
	nameToID      map[string]string
	trials        map[int64]*model.Trial
	trialsByStudy map[string][]int64
	userAttrs     map[string]map[string]string
	systemAttrs   map[string]map[string]string
	train         map[string]*dataset.Dataset
	test          map[string]*dataset.Dataset
	nextNumber    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		studies:       make(map[string]*model.Study),
		nameToID:      make(map[string]string),
		trials:        make(map[int64]*model.Trial),
		trialsByStudy: make(map[string][]int64),
		userAttrs:     make(map[string]map[string]string),
		systemAttrs:   make(map[string]map[string]string),
		train:         make(map[string]*dataset.Dataset),
		test:          make(map[string]*dataset.Dataset),
	}
}

// CreateStudy registers a new study under name and returns its id.
func (s *MemoryStore) CreateStudy(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nameToID[name]; ok {
		return "", fmt.Errorf("study %q: %w", name, ErrDuplicateStudy)
	}

	st := &model.Study{
		ID:        model.NewID(),
		Name:      name,
		Direction: model.DirectionMinimize,
		CreatedAt: time.Now().UTC(),
	}
	s.studies[st.ID] = st
	s.nameToID[name] = st.ID
	return st.ID, nil
}

// StudyIDFromName resolves a study name to its id.
func (s *MemoryStore) StudyIDFromName(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.nameToID[name]
	if !ok {
		return "", fmt.Errorf("study %q: %w", name, ErrNotFound)
	}
	return id, nil
}

// StudyNameFromID resolves a study id to its name.
func (s *MemoryStore) StudyNameFromID(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.studies[id]
	if !ok {
		return "", fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return st.Name, nil
}

// SetStudyDirection records the study's optimization direction.
func (s *MemoryStore) SetStudyDirection(ctx context.Context, id, direction string) error {
	if !model.ValidDirection(direction) {
		return fmt.Errorf("unknown direction %q", direction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.studies[id]
	if !ok {
		return fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	st.Direction = direction
	return nil
}

// StudyDirection returns the study's optimization direction.
func (s *MemoryStore) StudyDirection(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.studies[id]
	if !ok {
		return "", fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return st.Direction, nil
}

// SetStudyUserAttr sets a user attribute on a study.
func (s *MemoryStore) SetStudyUserAttr(ctx context.Context, id, key, value string) error {
	return s.setStudyAttr(s.userAttrs, id, key, value)
}

// SetStudySystemAttr sets a system attribute on a study.
func (s *MemoryStore) SetStudySystemAttr(ctx context.Context, id, key, value string) error {
	return s.setStudyAttr(s.systemAttrs, id, key, value)
}

func (s *MemoryStore) setStudyAttr(attrs map[string]map[string]string, id, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[id]; !ok {
		return fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if attrs[id] == nil {
		attrs[id] = make(map[string]string)
	}
	attrs[id][key] = value
	return nil
}

// StudyUserAttrs returns a copy of the study's user attributes.
func (s *MemoryStore) StudyUserAttrs(ctx context.Context, id string) (map[string]string, error) {
	return s.studyAttrs(s.userAttrs, id)
}

// StudySystemAttrs returns a copy of the study's system attributes.
func (s *MemoryStore) StudySystemAttrs(ctx context.Context, id string) (map[string]string, error) {
	return s.studyAttrs(s.systemAttrs, id)
}

func (s *MemoryStore) studyAttrs(attrs map[string]map[string]string, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.studies[id]; !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return copyAttrs(attrs[id]), nil
}

// CreateTrial atomically allocates the next trial number for a study and
// stores a RUNNING trial record.
func (s *MemoryStore) CreateTrial(ctx context.Context, studyID string) (*model.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[studyID]; !ok {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNotFound)
	}

	s.nextNumber++
	t := &model.Trial{
		Number:    s.nextNumber,
		StudyID:   studyID,
		State:     model.StateRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.trials[t.Number] = t
	s.trialsByStudy[studyID] = append(s.trialsByStudy[studyID], t.Number)
	return copyTrial(t), nil
}

// SetTrialState moves a trial through its state machine. Terminal writes
// stamp FinishedAt; rewriting the current state is a no-op.
func (s *MemoryStore) SetTrialState(ctx context.Context, number int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[number]
	if !ok {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if !model.ValidTransition(t.State, state) {
		return fmt.Errorf("trial %d: %s -> %s: %w", number, t.State, state, ErrInvalidTransition)
	}
	if t.State == state {
		return nil
	}

	t.State = state
	if model.IsTerminal(state) {
		now := time.Now().UTC()
		t.FinishedAt = &now
	}
	return nil
}

// SetTrialValue records the reported objective value on a trial. Values
// cannot be written once the trial is terminal.
func (s *MemoryStore) SetTrialValue(ctx context.Context, number int64, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[number]
	if !ok {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if model.IsTerminal(t.State) {
		return fmt.Errorf("trial %d is %s: %w", number, t.State, ErrInvalidTransition)
	}
	t.Value = &value
	return nil
}

// SetTrialUserAttr sets a user attribute on a trial.
func (s *MemoryStore) SetTrialUserAttr(ctx context.Context, number int64, key, value string) error {
	return s.setTrialAttr(number, key, value, false)
}

// SetTrialSystemAttr sets a system attribute on a trial.
func (s *MemoryStore) SetTrialSystemAttr(ctx context.Context, number int64, key, value string) error {
	return s.setTrialAttr(number, key, value, true)
}

func (s *MemoryStore) setTrialAttr(number int64, key, value string, system bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[number]
	if !ok {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if system {
		if t.SystemAttrs == nil {
			t.SystemAttrs = make(map[string]string)
		}
		t.SystemAttrs[key] = value
	} else {
		if t.UserAttrs == nil {
			t.UserAttrs = make(map[string]string)
		}
		t.UserAttrs[key] = value
	}
	return nil
}

// Trial returns a copy of one trial record.
func (s *MemoryStore) Trial(ctx context.Context, number int64) (*model.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trials[number]
	if !ok {
		return nil, fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	return copyTrial(t), nil
}

// Trials returns copies of a study's trials ordered by ascending number.
func (s *MemoryStore) Trials(ctx context.Context, studyID string) ([]*model.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.studies[studyID]; !ok {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNotFound)
	}

	numbers := s.trialsByStudy[studyID]
	trials := make([]*model.Trial, 0, len(numbers))
	for _, n := range numbers {
		trials = append(trials, copyTrial(s.trials[n]))
	}
	return trials, nil
}

// BestTrial returns the COMPLETE trial with the extremal value for the
// study's direction. Ties go to the lowest trial number.
func (s *MemoryStore) BestTrial(ctx context.Context, studyID string) (*model.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.studies[studyID]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNotFound)
	}

	var best *model.Trial
	for _, n := range s.trialsByStudy[studyID] {
		t := s.trials[n]
		if t.State != model.StateComplete || t.Value == nil {
			continue
		}
		// Strict comparison over ascending numbers keeps the earliest tie.
		if best == nil || model.Better(st.Direction, *t.Value, *best.Value) {
			best = t
		}
	}
	if best == nil {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNoCompletedTrials)
	}
	return copyTrial(best), nil
}

// SetTrainData stores the training dataset handle for a study.
func (s *MemoryStore) SetTrainData(ctx context.Context, studyID string, ds *dataset.Dataset) error {
	return s.setData(s.train, studyID, ds)
}

// SetTestData stores the test dataset handle for a study.
func (s *MemoryStore) SetTestData(ctx context.Context, studyID string, ds *dataset.Dataset) error {
	return s.setData(s.test, studyID, ds)
}

func (s *MemoryStore) setData(m map[string]*dataset.Dataset, studyID string, ds *dataset.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[studyID]; !ok {
		return fmt.Errorf("study %s: %w", studyID, ErrNotFound)
	}
	m[studyID] = ds
	return nil
}

// TrainData returns the training dataset handle for a study.
func (s *MemoryStore) TrainData(ctx context.Context, studyID string) (*dataset.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.train[studyID]
	if !ok {
		return nil, ErrNoTrainData
	}
	return ds, nil
}

// TestData returns the test dataset handle for a study.
func (s *MemoryStore) TestData(ctx context.Context, studyID string) (*dataset.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.test[studyID]
	if !ok {
		return nil, ErrNoTestData
	}
	return ds, nil
}

// Summaries returns one summary per study, ordered by id (creation order,
// since ids are ULIDs).
func (s *MemoryStore) Summaries(ctx context.Context) ([]*model.StudySummary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.studies))
	for id := range s.studies {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	summaries := make([]*model.StudySummary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.summarize(ctx, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (s *MemoryStore) summarize(ctx context.Context, id string) (*model.StudySummary, error) {
	best, err := s.BestTrial(ctx, id)
	if err != nil && !errors.Is(err, ErrNoCompletedTrials) {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return &model.StudySummary{
		ID:          st.ID,
		Name:        st.Name,
		Direction:   st.Direction,
		TrialCount:  len(s.trialsByStudy[id]),
		BestTrial:   best,
		UserAttrs:   copyAttrs(s.userAttrs[id]),
		SystemAttrs: copyAttrs(s.systemAttrs[id]),
		CreatedAt:   st.CreatedAt,
	}, nil
}

// Stats aggregates counts across all studies.
func (s *MemoryStore) Stats(ctx context.Context) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.Stats{
		TotalStudies: len(s.studies),
		TotalTrials:  len(s.trials),
		CountByState: make(map[string]int),
	}

	var durSum float64
	var durCount int
	for _, t := range s.trials {
		stats.CountByState[t.State]++
		if t.FinishedAt != nil {
			durSum += float64(t.FinishedAt.Sub(t.CreatedAt).Milliseconds())
			durCount++
		}
	}
	if durCount > 0 {
		stats.AvgDurationMS = durSum / float64(durCount)
	}
	return stats, nil
}

// RemoveSession is a no-op: the in-memory backend holds no per-worker
// resources.
func (s *MemoryStore) RemoveSession() {}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

// copyTrial returns a deep copy of a trial record.
func copyTrial(t *model.Trial) *model.Trial {
	c := *t
	if t.Value != nil {
		v := *t.Value
		c.Value = &v
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	c.SystemAttrs = copyAttrs(t.SystemAttrs)
	c.UserAttrs = copyAttrs(t.UserAttrs)
	return &c
}

// copyAttrs returns a copy of an attribute map; nil stays nil.
func copyAttrs(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
