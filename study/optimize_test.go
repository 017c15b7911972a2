package study_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/model"
	"github.com/Sanyam07/diego/storage"
	"github.com/Sanyam07/diego/study"
)

// countingCandidate reports score and counts Fit calls through a shared
// counter, so tests can assert each trial ran exactly once.
type countingCandidate struct {
	fits  *atomic.Int64
	score float64
}

func (c countingCandidate) Fit(context.Context, [][]float64, []float64) error {
	c.fits.Add(1)
	return nil
}

func (c countingCandidate) Score(context.Context, [][]float64, []float64) (float64, error) {
	return c.score, nil
}

// sessionCountingStore counts RemoveSession calls from workers.
type sessionCountingStore struct {
	storage.Store
	removed atomic.Int64
}

func (s *sessionCountingStore) RemoveSession() {
	s.removed.Add(1)
	s.Store.RemoveSession()
}

func mustTrialRecord(t *testing.T, s *study.Study, number int64) *model.Trial {
	t.Helper()
	rec, err := s.Store().Trial(context.Background(), number)
	if err != nil {
		t.Fatalf("failed to get trial %d: %v", number, err)
	}
	return rec
}

func TestOptimizeSequentialScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	// Trial 1 fails during fit, trial 2 scores 0.83, trial 3 returns NaN.
	failing := candidate.Funcs{
		FitFn: func(context.Context, [][]float64, []float64) error {
			return candidate.New(candidate.ClassValue, "bad hyperparameters")
		},
		ScoreFn: func(context.Context, [][]float64, []float64) (float64, error) {
			return 0, nil
		},
	}
	t1, err := s.NewTrial(ctx, failing)
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}
	t2, err := s.NewTrial(ctx, scoreCandidate(0.83))
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}
	t3, err := s.NewTrial(ctx, scoreCandidate(math.NaN()))
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	rec1 := mustTrialRecord(t, s, t1.Number)
	if rec1.State != model.StateFail {
		t.Errorf("trial 1 state = %s, want %s", rec1.State, model.StateFail)
	}
	reason1 := rec1.SystemAttrs[model.AttrFailReason]
	if !strings.Contains(reason1, "because of the following error") || !strings.Contains(reason1, "bad hyperparameters") {
		t.Errorf("trial 1 fail reason = %q, want the candidate error", reason1)
	}

	rec2 := mustTrialRecord(t, s, t2.Number)
	if rec2.State != model.StateComplete {
		t.Errorf("trial 2 state = %s, want %s", rec2.State, model.StateComplete)
	}
	if rec2.Value == nil || *rec2.Value != 0.83 {
		t.Errorf("trial 2 value = %v, want 0.83", rec2.Value)
	}

	rec3 := mustTrialRecord(t, s, t3.Number)
	if rec3.State != model.StateFail {
		t.Errorf("trial 3 state = %s, want %s", rec3.State, model.StateFail)
	}
	reason3 := rec3.SystemAttrs[model.AttrFailReason]
	if !strings.Contains(reason3, "invalid value") || !strings.Contains(reason3, "NaN") {
		t.Errorf("trial 3 fail reason = %q, want mention of NaN", reason3)
	}

	// Value is set iff COMPLETE.
	for _, rec := range []*model.Trial{rec1, rec3} {
		if rec.Value != nil {
			t.Errorf("trial %d has value %v despite state %s", rec.Number, *rec.Value, rec.State)
		}
	}

	best, err := s.BestValue(ctx)
	if err != nil {
		t.Fatalf("failed to get best value: %v", err)
	}
	if best != 0.83 {
		t.Errorf("best value = %v, want 0.83", best)
	}
}

func TestOptimizeTimeoutZeroRunsNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	var fits atomic.Int64
	var numbers []int64
	for i := 0; i < 3; i++ {
		tr, err := s.NewTrial(ctx, countingCandidate{fits: &fits, score: 0.5})
		if err != nil {
			t.Fatalf("failed to create trial: %v", err)
		}
		numbers = append(numbers, tr.Number)
	}

	timeout := time.Duration(0)
	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{Timeout: &timeout}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	if fits.Load() != 0 {
		t.Errorf("expected zero fits, got %d", fits.Load())
	}
	for _, n := range numbers {
		rec := mustTrialRecord(t, s, n)
		if rec.State != model.StateRunning {
			t.Errorf("trial %d state = %s, want untouched %s", n, rec.State, model.StateRunning)
		}
	}
}

func TestOptimizeParallelRunsEachTrialOnce(t *testing.T) {
	ctx := context.Background()
	st := &sessionCountingStore{Store: storage.NewMemoryStore()}
	s := newTestStudy(t, study.Options{
		Store:     st,
		Direction: model.DirectionMaximize,
	})

	var fits atomic.Int64
	for i := 0; i < 10; i++ {
		score := float64(i) / 10
		if _, err := s.NewTrial(ctx, countingCandidate{fits: &fits, score: score}); err != nil {
			t.Fatalf("failed to create trial: %v", err)
		}
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{NJobs: 4}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	if fits.Load() != 10 {
		t.Errorf("expected each trial fit exactly once, got %d fits for 10 trials", fits.Load())
	}

	trials, err := s.Trials(ctx)
	if err != nil {
		t.Fatalf("failed to list trials: %v", err)
	}
	for _, rec := range trials {
		if rec.State != model.StateComplete {
			t.Errorf("trial %d state = %s, want %s", rec.Number, rec.State, model.StateComplete)
		}
	}

	best, err := s.BestTrial(ctx)
	if err != nil {
		t.Fatalf("failed to get best trial: %v", err)
	}
	if best.Value == nil || *best.Value != 0.9 {
		t.Errorf("best value = %v, want 0.9", best.Value)
	}

	// Every worker releases its store session on its stop signal.
	if st.removed.Load() != 4 {
		t.Errorf("expected 4 session removals, got %d", st.removed.Load())
	}
}

func TestOptimizeParallelAllCPUs(t *testing.T) {
	ctx := context.Background()
	st := &sessionCountingStore{Store: storage.NewMemoryStore()}
	s := newTestStudy(t, study.Options{Store: st})

	var fits atomic.Int64
	for i := 0; i < 3; i++ {
		if _, err := s.NewTrial(ctx, countingCandidate{fits: &fits, score: float64(i)}); err != nil {
			t.Fatalf("failed to create trial: %v", err)
		}
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{NJobs: -1}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	if fits.Load() != 3 {
		t.Errorf("expected 3 fits, got %d", fits.Load())
	}

	// Pool size is NumCPU capped at the pending count, so between 1 and 3
	// workers each released one session.
	removed := st.removed.Load()
	if removed < 1 || removed > 3 {
		t.Errorf("expected between 1 and 3 session removals, got %d", removed)
	}
}

func TestOptimizeUncaughtErrorAborts(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	boom := errors.New("store exploded")
	exploding := candidate.Funcs{
		ScoreFn: func(context.Context, [][]float64, []float64) (float64, error) {
			return 0, candidate.Wrap(candidate.ClassInternal, boom)
		},
	}
	t1, err := s.NewTrial(ctx, exploding)
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}
	t2, err := s.NewTrial(ctx, scoreCandidate(0.5))
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	err = s.Optimize(ctx, testData(t), study.OptimizeOptions{
		Catch: candidate.CatchOnly(candidate.ClassValue),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the uncaught error to propagate, got %v", err)
	}

	// The aborted run leaves both trials without a terminal state.
	for _, n := range []int64{t1.Number, t2.Number} {
		rec := mustTrialRecord(t, s, n)
		if rec.State != model.StateRunning {
			t.Errorf("trial %d state = %s, want %s", n, rec.State, model.StateRunning)
		}
	}
}

func TestOptimizePrunedTrial(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	pruning := candidate.Funcs{
		ScoreFn: func(context.Context, [][]float64, []float64) (float64, error) {
			return 0, fmt.Errorf("stopping early: %w", candidate.ErrPruned)
		},
	}
	t1, err := s.NewTrial(ctx, pruning)
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}
	t2, err := s.NewTrial(ctx, scoreCandidate(0.6))
	if err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	rec1 := mustTrialRecord(t, s, t1.Number)
	if rec1.State != model.StatePruned {
		t.Errorf("trial 1 state = %s, want %s", rec1.State, model.StatePruned)
	}
	if rec1.Value != nil {
		t.Errorf("pruned trial has value %v", *rec1.Value)
	}

	rec2 := mustTrialRecord(t, s, t2.Number)
	if rec2.State != model.StateComplete {
		t.Errorf("trial 2 state = %s, want %s: pruning must not stop the run", rec2.State, model.StateComplete)
	}
}

func TestOptimizeSkipsTerminalTrials(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	var fits atomic.Int64
	if _, err := s.NewTrial(ctx, countingCandidate{fits: &fits, score: 0.5}); err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("first optimize failed: %v", err)
	}
	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("second optimize failed: %v", err)
	}

	if fits.Load() != 1 {
		t.Errorf("expected terminal trial to run once, got %d fits", fits.Load())
	}
}

func TestOptimizeEmptyStudyGeneratesDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	trials, err := s.Trials(ctx)
	if err != nil {
		t.Fatalf("failed to list trials: %v", err)
	}
	if len(trials) != 1 {
		t.Fatalf("expected one generated trial, got %d", len(trials))
	}

	rec := trials[0]
	if rec.State != model.StateComplete {
		t.Errorf("trial state = %s, want %s", rec.State, model.StateComplete)
	}
	if rec.Value == nil || *rec.Value != 0.5 {
		t.Errorf("trial value = %v, want the baseline accuracy 0.5", rec.Value)
	}
	if got := rec.SystemAttrs[model.AttrCandidate]; got != "baseline" {
		t.Errorf("candidate attr = %q, want baseline", got)
	}

	// A later run sees a non-empty study and must not generate again.
	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("second optimize failed: %v", err)
	}
	trials, err = s.Trials(ctx)
	if err != nil {
		t.Fatalf("failed to list trials: %v", err)
	}
	if len(trials) != 1 {
		t.Errorf("expected no regenerated trials, got %d", len(trials))
	}
}

func TestOptimizeEmptyStudyRunsConfiguredGenerators(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{
		Generators: []candidate.Generator{
			{Name: "fixed", New: func() candidate.Candidate { return scoreCandidate(0.9) }},
		},
	})

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	trials, err := s.Trials(ctx)
	if err != nil {
		t.Fatalf("failed to list trials: %v", err)
	}
	if len(trials) != 1 {
		t.Fatalf("expected one generated trial, got %d", len(trials))
	}
	if got := trials[0].SystemAttrs[model.AttrCandidate]; got != "fixed" {
		t.Errorf("candidate attr = %q, want fixed", got)
	}
	if trials[0].Value == nil || *trials[0].Value != 0.9 {
		t.Errorf("trial value = %v, want 0.9", trials[0].Value)
	}
}

func TestOptimizeNTrialsCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	var numbers []int64
	for i := 0; i < 3; i++ {
		tr, err := s.NewTrial(ctx, scoreCandidate(float64(i)))
		if err != nil {
			t.Fatalf("failed to create trial: %v", err)
		}
		numbers = append(numbers, tr.Number)
	}

	nTrials := 2
	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{NTrials: &nTrials}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	states := []string{model.StateComplete, model.StateComplete, model.StateRunning}
	for i, n := range numbers {
		rec := mustTrialRecord(t, s, n)
		if rec.State != states[i] {
			t.Errorf("trial %d state = %s, want %s", n, rec.State, states[i])
		}
	}
}

func TestOptimizeCancelledContext(t *testing.T) {
	s := newTestStudy(t, study.Options{})

	var fits atomic.Int64
	if _, err := s.NewTrial(context.Background(), countingCandidate{fits: &fits, score: 0.5}); err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Optimize(ctx, testData(t), study.OptimizeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fits.Load() != 0 {
		t.Errorf("expected no fits after cancellation, got %d", fits.Load())
	}
}

func TestOptimizeMissingTestData(t *testing.T) {
	ctx := context.Background()
	s := newTestStudy(t, study.Options{})

	if _, err := s.NewTrial(ctx, scoreCandidate(0.5)); err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	err := s.Optimize(ctx, nil, study.OptimizeOptions{})
	if !errors.Is(err, storage.ErrNoTestData) {
		t.Fatalf("expected ErrNoTestData, got %v", err)
	}
}

func TestOptimizePublishesEvents(t *testing.T) {
	ctx := context.Background()
	hub := study.NewHub()
	s := newTestStudy(t, study.Options{Hub: hub})

	ch, unsub := hub.Subscribe(s.ID())
	defer unsub()

	failing := candidate.Funcs{
		ScoreFn: func(context.Context, [][]float64, []float64) (float64, error) {
			return 0, candidate.New(candidate.ClassData, "corrupt batch")
		},
	}
	if _, err := s.NewTrial(ctx, scoreCandidate(0.5)); err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}
	if _, err := s.NewTrial(ctx, failing); err != nil {
		t.Fatalf("failed to create trial: %v", err)
	}

	if err := s.Optimize(ctx, testData(t), study.OptimizeOptions{}); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	var events []study.TrialEvent
	for len(events) < 2 {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %d", len(events))
		}
	}

	first, second := events[0], events[1]
	if first.State != model.StateComplete || first.Value == nil || *first.Value != 0.5 {
		t.Errorf("first event = %+v, want COMPLETE with value 0.5", first)
	}
	if first.Best == nil || *first.Best != 0.5 {
		t.Errorf("first event best = %v, want 0.5", first.Best)
	}
	if second.State != model.StateFail || second.Reason == "" {
		t.Errorf("second event = %+v, want FAIL with a reason", second)
	}
	if first.StudyName != s.Name() {
		t.Errorf("event study name = %q, want %q", first.StudyName, s.Name())
	}
}
