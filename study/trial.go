package study

import (
	"context"
	"sync"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/model"
	"github.com/Sanyam07/diego/storage"
)

// Trial is the live handle a worker executes. It holds the study id rather
// than the Study so trials never own their study; persisted fields are read
// and written through the store.
type Trial struct {
	Number    int64
	Candidate candidate.Candidate

	studyID string
	store   storage.Store

	mu       sync.Mutex
	value    float64
	hasValue bool
}

// StudyID returns the id of the study the trial belongs to.
func (t *Trial) StudyID() string { return t.studyID }

// Report records the objective value on the handle. It does not persist
// anything: terminal-state writes stay centralized in the execution engine so
// each trial gets exactly one.
func (t *Trial) Report(value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = value
	t.hasValue = true
}

// Value returns the locally reported value, if any.
func (t *Trial) Value() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.hasValue
}

// State reads the trial's persisted state.
func (t *Trial) State(ctx context.Context) (string, error) {
	rec, err := t.store.Trial(ctx, t.Number)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// Record reads the trial's full persisted record.
func (t *Trial) Record(ctx context.Context) (*model.Trial, error) {
	return t.store.Trial(ctx, t.Number)
}

// UserAttrs reads the trial's persisted user attributes.
func (t *Trial) UserAttrs(ctx context.Context) (map[string]string, error) {
	rec, err := t.store.Trial(ctx, t.Number)
	if err != nil {
		return nil, err
	}
	return rec.UserAttrs, nil
}

// SystemAttrs reads the trial's persisted system attributes.
func (t *Trial) SystemAttrs(ctx context.Context) (map[string]string, error) {
	rec, err := t.store.Trial(ctx, t.Number)
	if err != nil {
		return nil, err
	}
	return rec.SystemAttrs, nil
}

// SetUserAttr sets a user attribute on the trial.
func (t *Trial) SetUserAttr(ctx context.Context, key, value string) error {
	return t.store.SetTrialUserAttr(ctx, t.Number, key, value)
}
