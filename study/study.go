package study

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/dataset"
	"github.com/Sanyam07/diego/model"
	"github.com/Sanyam07/diego/sampler"
	"github.com/Sanyam07/diego/storage"
)

// Options configures a Study. Zero values fall back to an in-memory store, a
// generated name, in-order trial generation, direction minimize, the default
// logger and a baseline-only generator list.
type Options struct {
	Store      storage.Store
	Sampler    sampler.Sampler
	Name       string
	Direction  string
	Hub        *Hub
	Logger     *slog.Logger
	Generators []candidate.Generator
}

// Study owns an ordered list of trials over one train/test data pair and
// drives their execution. The store may be shared across studies; trials hold
// only the study id as a back-reference, never the Study itself.
type Study struct {
	id         string
	name       string
	direction  string
	store      storage.Store
	sampler    sampler.Sampler
	generators []candidate.Generator
	hub        *Hub
	logger     *slog.Logger

	mu     sync.Mutex
	trials []*Trial
}

// Create registers a new study and stores its training data. The study name
// must be unique within the store; an empty name gets a generated one. Fails
// with storage.ErrDuplicateStudy when the name is taken and with
// dataset.ErrShapeMismatch (wrapped) when train is nil.
func Create(ctx context.Context, train *dataset.Dataset, opts Options) (*Study, error) {
	if train == nil {
		return nil, fmt.Errorf("train data: %w", dataset.ErrShapeMismatch)
	}

	s, err := newStudy(opts)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateStudy(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("create study: %w", err)
	}
	s.id = id

	if err := s.store.SetStudyDirection(ctx, id, s.direction); err != nil {
		return nil, fmt.Errorf("set direction: %w", err)
	}
	if err := s.store.SetTrainData(ctx, id, train); err != nil {
		return nil, fmt.Errorf("set train data: %w", err)
	}

	s.logger.Info("created study", "study", s.name, "id", id, "direction", s.direction)
	return s, nil
}

// Load reopens an existing study by name. The direction recorded in the store
// wins over Options.Direction. Fails with storage.ErrNotFound when no study
// has the name.
func Load(ctx context.Context, name string, opts Options) (*Study, error) {
	opts.Name = name
	s, err := newStudy(opts)
	if err != nil {
		return nil, err
	}

	id, err := s.store.StudyIDFromName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load study: %w", err)
	}
	direction, err := s.store.StudyDirection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load study: %w", err)
	}

	s.id = id
	s.direction = direction
	return s, nil
}

// newStudy applies option defaults. The id is filled in by Create or Load.
func newStudy(opts Options) (*Study, error) {
	s := &Study{
		name:       opts.Name,
		direction:  opts.Direction,
		store:      opts.Store,
		sampler:    opts.Sampler,
		generators: opts.Generators,
		hub:        opts.Hub,
		logger:     opts.Logger,
	}

	if s.store == nil {
		s.store = storage.NewMemoryStore()
	}
	if s.name == "" {
		s.name = "no-name-" + uuid.NewString()
	}
	if s.direction == "" {
		s.direction = model.DirectionMinimize
	}
	if !model.ValidDirection(s.direction) {
		return nil, fmt.Errorf("unknown direction %q", s.direction)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if len(s.generators) == 0 {
		s.generators = []candidate.Generator{candidate.BaselineGenerator()}
	}
	return s, nil
}

// ID returns the storage-assigned study id.
func (s *Study) ID() string { return s.id }

// Name returns the study name.
func (s *Study) Name() string { return s.name }

// Direction returns the study's optimization direction.
func (s *Study) Direction() string { return s.direction }

// Store returns the study's backing store.
func (s *Study) Store() storage.Store { return s.store }

// BestTrial returns the COMPLETE trial with the extremal value for the
// study's direction. Fails with storage.ErrNoCompletedTrials when no trial is
// COMPLETE.
func (s *Study) BestTrial(ctx context.Context) (*model.Trial, error) {
	return s.store.BestTrial(ctx, s.id)
}

// BestValue returns the best trial's reported value.
func (s *Study) BestValue(ctx context.Context) (float64, error) {
	best, err := s.BestTrial(ctx)
	if err != nil {
		return 0, err
	}
	return *best.Value, nil
}

// Trials returns the study's trial records ordered by ascending number.
func (s *Study) Trials(ctx context.Context) ([]*model.Trial, error) {
	return s.store.Trials(ctx, s.id)
}

// UserAttrs returns the study's user attributes.
func (s *Study) UserAttrs(ctx context.Context) (map[string]string, error) {
	return s.store.StudyUserAttrs(ctx, s.id)
}

// SystemAttrs returns the study's system attributes.
func (s *Study) SystemAttrs(ctx context.Context) (map[string]string, error) {
	return s.store.StudySystemAttrs(ctx, s.id)
}

// SetUserAttr sets a user attribute on the study.
func (s *Study) SetUserAttr(ctx context.Context, key, value string) error {
	return s.store.SetStudyUserAttr(ctx, s.id, key, value)
}

// SetSystemAttr sets a system attribute on the study.
func (s *Study) SetSystemAttr(ctx context.Context, key, value string) error {
	return s.store.SetStudySystemAttr(ctx, s.id, key, value)
}

// Summaries returns one summary per study in the store, in creation order.
func Summaries(ctx context.Context, st storage.Store) ([]*model.StudySummary, error) {
	return st.Summaries(ctx)
}
