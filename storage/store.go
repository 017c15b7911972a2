// Package storage defines the persistence contract studies and trials live
// behind, plus the in-memory and SQLite backends that satisfy it.
package storage

import (
	"context"
	"errors"

	"github.com/Sanyam07/diego/dataset"
	"github.com/Sanyam07/diego/model"
)

// Sentinel errors shared by every backend.
var (
	// ErrNotFound is returned when a study or trial does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateStudy is returned when a study name is already taken.
	ErrDuplicateStudy = errors.New("study name already exists")

	// ErrInvalidTransition is returned when a trial state change is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoCompletedTrials is returned by best-trial lookups when no trial
	// has reached COMPLETE.
	ErrNoCompletedTrials = errors.New("no trials are completed yet")

	// ErrNoTrainData and ErrNoTestData are returned when a dataset handle is
	// read before being set.
	ErrNoTrainData = errors.New("train data is not set")
	ErrNoTestData  = errors.New("test data is not set")
)

// Store defines the persistence operations for studies, trials, and the
// dataset handles their fit/score steps read.
//
// Trial numbers are allocated from a store-wide monotone counter, so a
// number alone identifies a trial and numbers ascend within every study.
// CreateTrial is the one operation guaranteed to be called from multiple
// worker goroutines at once and must allocate atomically; per-trial
// mutations are serialized by the engine (one worker owns one trial), but
// aggregate reads may run concurrently with them.
type Store interface {
	CreateStudy(ctx context.Context, name string) (string, error)
	StudyIDFromName(ctx context.Context, name string) (string, error)
	StudyNameFromID(ctx context.Context, id string) (string, error)
	SetStudyDirection(ctx context.Context, id, direction string) error
	StudyDirection(ctx context.Context, id string) (string, error)
	SetStudyUserAttr(ctx context.Context, id, key, value string) error
	SetStudySystemAttr(ctx context.Context, id, key, value string) error
	StudyUserAttrs(ctx context.Context, id string) (map[string]string, error)
	StudySystemAttrs(ctx context.Context, id string) (map[string]string, error)

	CreateTrial(ctx context.Context, studyID string) (*model.Trial, error)
	SetTrialState(ctx context.Context, number int64, state string) error
	SetTrialValue(ctx context.Context, number int64, value float64) error
	SetTrialUserAttr(ctx context.Context, number int64, key, value string) error
	SetTrialSystemAttr(ctx context.Context, number int64, key, value string) error
	Trial(ctx context.Context, number int64) (*model.Trial, error)
	Trials(ctx context.Context, studyID string) ([]*model.Trial, error)
	BestTrial(ctx context.Context, studyID string) (*model.Trial, error)

	SetTrainData(ctx context.Context, studyID string, ds *dataset.Dataset) error
	SetTestData(ctx context.Context, studyID string, ds *dataset.Dataset) error
	TrainData(ctx context.Context, studyID string) (*dataset.Dataset, error)
	TestData(ctx context.Context, studyID string) (*dataset.Dataset, error)

	Summaries(ctx context.Context) ([]*model.StudySummary, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// RemoveSession releases any per-worker resource held by the calling
	// execution context. Workers call it once when they exit.
	RemoveSession()

	Close() error
}
