package study

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/dataset"
	"github.com/Sanyam07/diego/model"
)

// dispatchBackoff is the sleep between dispatch attempts while the signal
// queue is full, so the clock is re-checked instead of blocking on a send.
const dispatchBackoff = 5 * time.Millisecond

// OptimizeOptions controls one Optimize run.
//
// NTrials caps how many pending trials run (nil runs all). Timeout bounds the
// run's wall-clock time, checked at trial boundaries only; a running fit or
// score call is never preempted. nil means no limit, zero dispatches nothing.
// NJobs selects the strategy: <= 1 sequential, > 1 a worker pool of that
// size, -1 one worker per CPU (capped at the pending count). Catch is the set
// of failure classes recorded as FAIL instead of aborting the run; nil
// catches every class.
type OptimizeOptions struct {
	NTrials *int
	Timeout *time.Duration
	NJobs   int
	Catch   candidate.Catch
}

// Optimize stores the test data and runs the study's pending trials. A study
// with no trials at all first materializes one trial per configured
// generator. Trial failures in the catchable set are recorded and the run
// continues; any other error aborts dispatch and is returned, leaving
// undispatched trials untouched. Terminal states recorded before the abort
// are retained.
func (s *Study) Optimize(ctx context.Context, test *dataset.Dataset, opts OptimizeOptions) error {
	if test != nil {
		if err := s.store.SetTestData(ctx, s.id, test); err != nil {
			return fmt.Errorf("set test data: %w", err)
		}
	}

	recs, err := s.store.Trials(ctx, s.id)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		s.logger.Warn("no trials, generating default candidates", "study", s.name)
		if _, err := s.GenerateTrials(ctx, s.generators); err != nil {
			return fmt.Errorf("generate default trials: %w", err)
		}
	}

	catch := opts.Catch
	if catch == nil {
		catch = candidate.CatchAll()
	}

	pending, err := s.pending(ctx, opts.NTrials)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	if opts.NJobs > 1 || opts.NJobs == -1 {
		optimizeRunsTotal.WithLabelValues(modeParallel).Inc()
		return s.optimizeParallel(ctx, pending, opts, catch, start)
	}
	optimizeRunsTotal.WithLabelValues(modeSequential).Inc()
	return s.optimizeSequential(ctx, pending, opts.Timeout, catch, start)
}

// pending snapshots the study's non-terminal trials in ascending-number
// order, capped at nTrials.
func (s *Study) pending(ctx context.Context, nTrials *int) ([]*Trial, error) {
	s.mu.Lock()
	handles := make([]*Trial, len(s.trials))
	copy(handles, s.trials)
	s.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i].Number < handles[j].Number })

	pending := make([]*Trial, 0, len(handles))
	for _, t := range handles {
		rec, err := s.store.Trial(ctx, t.Number)
		if err != nil {
			return nil, err
		}
		if model.IsTerminal(rec.State) {
			continue
		}
		pending = append(pending, t)
		if nTrials != nil && len(pending) >= *nTrials {
			break
		}
	}
	return pending, nil
}

// optimizeSequential runs trials one at a time, checking the clock before
// each. A timeout stops dispatch without failing the run; remaining trials
// keep their state.
func (s *Study) optimizeSequential(ctx context.Context, pending []*Trial, timeout *time.Duration, catch candidate.Catch, start time.Time) error {
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if timeout != nil && time.Since(start) >= *timeout {
			s.logger.Info("optimize timed out", "study", s.name, "elapsed", time.Since(start))
			return nil
		}
		if err := s.runTrial(ctx, t, catch); err != nil {
			return err
		}
	}
	return nil
}

// optimizeParallel runs trials through a fixed pool of n workers fed by a
// bounded queue of continue/stop signals. Workers advance a shared cursor
// over the snapshot, so each continue-signal runs exactly one
// previously-unstarted trial; a worker that finishes early pulls the next
// trial instead of idling.
func (s *Study) optimizeParallel(ctx context.Context, pending []*Trial, opts OptimizeOptions, catch candidate.Catch, start time.Time) error {
	n := opts.NJobs
	if n == -1 {
		n = runtime.NumCPU()
	}
	if n > len(pending) {
		n = len(pending)
	}

	signals := make(chan bool, n)
	var cursor atomic.Int64
	var failed atomic.Bool
	var errMu sync.Mutex
	var firstErr error

	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		failed.Store(true)
	}

	activeWorkers.Add(float64(n))
	defer activeWorkers.Sub(float64(n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for keep := range signals {
				if !keep {
					s.store.RemoveSession()
					return
				}
				idx := int(cursor.Add(1) - 1)
				if idx >= len(pending) {
					continue
				}
				if err := s.runTrial(ctx, pending[idx], catch); err != nil {
					record(err)
				}
			}
		}()
	}

	// Seed one continue-signal per worker, then feed the rest as slots free
	// up. Timeout and fatal errors stop dispatch only; signals already queued
	// still run.
	dispatched := n
	for i := 0; i < n; i++ {
		signals <- true
	}

	for dispatched < len(pending) && !failed.Load() {
		if ctx.Err() != nil {
			break
		}
		if opts.Timeout != nil && time.Since(start) >= *opts.Timeout {
			s.logger.Info("optimize timed out", "study", s.name, "elapsed", time.Since(start))
			break
		}
		select {
		case signals <- true:
			dispatched++
		default:
			time.Sleep(dispatchBackoff)
		}
	}

	for i := 0; i < n; i++ {
		signals <- false
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// runTrial executes one trial end to end: fit and score the candidate on the
// store's train/test data, classify the outcome, and record exactly one
// terminal state. Already-terminal trials are skipped. The returned error is
// non-nil only for fatal conditions; caught failures are recorded on the
// trial and return nil.
func (s *Study) runTrial(ctx context.Context, t *Trial, catch candidate.Catch) error {
	rec, err := s.store.Trial(ctx, t.Number)
	if err != nil {
		return err
	}
	if model.IsTerminal(rec.State) {
		return nil
	}

	train, err := s.store.TrainData(ctx, s.id)
	if err != nil {
		return fmt.Errorf("trial %d: %w", t.Number, err)
	}
	test, err := s.store.TestData(ctx, s.id)
	if err != nil {
		return fmt.Errorf("trial %d: %w", t.Number, err)
	}

	began := time.Now()
	value, err := fitAndScore(ctx, t, train, test)
	trialDuration.Observe(time.Since(began).Seconds())

	if err != nil {
		if errors.Is(err, candidate.ErrPruned) {
			s.logger.Info("pruned trial", "study", s.name, "trial", t.Number)
			return s.finish(ctx, t, model.StatePruned, nil, "")
		}
		class := candidate.ClassOf(err)
		if !catch.Has(class) {
			return fmt.Errorf("trial %d: %w", t.Number, err)
		}
		reason := fmt.Sprintf("Setting status of trial#%d as %s because of the following error: %v",
			t.Number, model.StateFail, err)
		s.logger.Warn("trial failed", "study", s.name, "trial", t.Number, "class", class, "error", err)
		return s.finish(ctx, t, model.StateFail, nil, reason)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		reason := fmt.Sprintf("Setting status of trial#%d as %s because the objective function returned an invalid value: %v",
			t.Number, model.StateFail, value)
		s.logger.Warn("trial returned invalid value", "study", s.name, "trial", t.Number, "value", value)
		return s.finish(ctx, t, model.StateFail, nil, reason)
	}

	t.Report(value)
	if err := s.finish(ctx, t, model.StateComplete, &value, ""); err != nil {
		return err
	}

	best, err := s.BestValue(ctx)
	if err != nil {
		best = value
	}
	s.logger.Info("finished trial", "study", s.name, "trial", t.Number, "value", value, "best", best)
	return nil
}

// fitAndScore drives the candidate against the study's data. Both calls may
// be long-running; ctx offers cooperative cancellation only.
func fitAndScore(ctx context.Context, t *Trial, train, test *dataset.Dataset) (float64, error) {
	if t.Candidate == nil {
		return 0, candidate.Errorf(candidate.ClassInternal, "trial %d has no candidate", t.Number)
	}
	if err := t.Candidate.Fit(ctx, train.Features, train.Labels); err != nil {
		return 0, err
	}
	return t.Candidate.Score(ctx, test.Features, test.Labels)
}

// finish writes a trial's terminal outcome: value (COMPLETE only), fail
// reason if any, then the state transition. The state write is the
// exactly-once terminal commit; the store rejects any second transition.
func (s *Study) finish(ctx context.Context, t *Trial, state string, value *float64, reason string) error {
	if value != nil {
		if err := s.store.SetTrialValue(ctx, t.Number, *value); err != nil {
			return fmt.Errorf("trial %d: set value: %w", t.Number, err)
		}
	}
	if reason != "" {
		if err := s.store.SetTrialSystemAttr(ctx, t.Number, model.AttrFailReason, reason); err != nil {
			return fmt.Errorf("trial %d: set fail reason: %w", t.Number, err)
		}
	}
	if err := s.store.SetTrialState(ctx, t.Number, state); err != nil {
		return fmt.Errorf("trial %d: set state: %w", t.Number, err)
	}

	trialsTotal.WithLabelValues(state).Inc()
	s.publish(ctx, t, state, value, reason)
	return nil
}

// publish emits a trial event to the study's hub, if it has one.
func (s *Study) publish(ctx context.Context, t *Trial, state string, value *float64, reason string) {
	if s.hub == nil {
		return
	}

	ev := TrialEvent{
		StudyID:   s.id,
		StudyName: s.name,
		Number:    t.Number,
		State:     state,
		Value:     value,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
	if best, err := s.store.BestTrial(ctx, s.id); err == nil {
		ev.Best = best.Value
	}
	s.hub.Publish(ev)
}
