package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sanyam07/diego/dataset"
	"github.com/Sanyam07/diego/model"

	_ "modernc.org/sqlite"
)

const createStudiesTable = `
CREATE TABLE IF NOT EXISTS studies (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    direction  TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createStudyAttrsTable = `
CREATE TABLE IF NOT EXISTS study_attrs (
    study_id TEXT NOT NULL,
    scope    TEXT NOT NULL,
    key      TEXT NOT NULL,
    value    TEXT NOT NULL,
    PRIMARY KEY (study_id, scope, key)
)`

const createTrialsTable = `
CREATE TABLE IF NOT EXISTS trials (
    number      INTEGER PRIMARY KEY AUTOINCREMENT,
    study_id    TEXT NOT NULL,
    state       TEXT NOT NULL,
    value       REAL,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createTrialAttrsTable = `
CREATE TABLE IF NOT EXISTS trial_attrs (
    number INTEGER NOT NULL,
    scope  TEXT NOT NULL,
    key    TEXT NOT NULL,
    value  TEXT NOT NULL,
    PRIMARY KEY (number, scope, key)
)`

const (
	scopeUser   = "user"
	scopeSystem = "system"
)

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite. Study and trial records are
// durable; the dataset handles are process-lifetime state held in memory,
// since matrices are working data rather than results.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.RWMutex
	train map[string]*dataset.Dataset
	test  map[string]*dataset.Dataset
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
// Session pragmas ride the DSN so the pool applies them on every connection,
// and transactions begin immediate so lock waits land in the busy timeout
// instead of failing a deferred write upgrade.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, stmt := range []string{
		createStudiesTable, createStudyAttrsTable,
		createTrialsTable, createTrialAttrsTable,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{
		db:    db,
		train: make(map[string]*dataset.Dataset),
		test:  make(map[string]*dataset.Dataset),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateStudy registers a new study under name and returns its id.
func (s *SQLiteStore) CreateStudy(ctx context.Context, name string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM studies WHERE name = ?", name).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("check study name: %w", err)
	}
	if exists > 0 {
		return "", fmt.Errorf("study %q: %w", name, ErrDuplicateStudy)
	}

	id := model.NewID()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO studies (id, name, direction, created_at) VALUES (?, ?, ?, ?)",
		id, name, model.DirectionMinimize, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert study: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// StudyIDFromName resolves a study name to its id.
func (s *SQLiteStore) StudyIDFromName(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM studies WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("study %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get study id: %w", err)
	}
	return id, nil
}

// StudyNameFromID resolves a study id to its name.
func (s *SQLiteStore) StudyNameFromID(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM studies WHERE id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get study name: %w", err)
	}
	return name, nil
}

// SetStudyDirection records the study's optimization direction.
func (s *SQLiteStore) SetStudyDirection(ctx context.Context, id, direction string) error {
	if !model.ValidDirection(direction) {
		return fmt.Errorf("unknown direction %q", direction)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE studies SET direction = ? WHERE id = ?", direction, id)
	if err != nil {
		return fmt.Errorf("update direction: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("study %s", id))
}

// StudyDirection returns the study's optimization direction.
func (s *SQLiteStore) StudyDirection(ctx context.Context, id string) (string, error) {
	var direction string
	err := s.db.QueryRowContext(ctx, "SELECT direction FROM studies WHERE id = ?", id).Scan(&direction)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get direction: %w", err)
	}
	return direction, nil
}

// SetStudyUserAttr sets a user attribute on a study.
func (s *SQLiteStore) SetStudyUserAttr(ctx context.Context, id, key, value string) error {
	return s.setStudyAttr(ctx, id, scopeUser, key, value)
}

// SetStudySystemAttr sets a system attribute on a study.
func (s *SQLiteStore) SetStudySystemAttr(ctx context.Context, id, key, value string) error {
	return s.setStudyAttr(ctx, id, scopeSystem, key, value)
}

func (s *SQLiteStore) setStudyAttr(ctx context.Context, id, scope, key, value string) error {
	if err := s.studyExists(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_attrs (study_id, scope, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (study_id, scope, key) DO UPDATE SET value = excluded.value`,
		id, scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("set study attr: %w", err)
	}
	return nil
}

// StudyUserAttrs returns the study's user attributes.
func (s *SQLiteStore) StudyUserAttrs(ctx context.Context, id string) (map[string]string, error) {
	return s.studyAttrs(ctx, id, scopeUser)
}

// StudySystemAttrs returns the study's system attributes.
func (s *SQLiteStore) StudySystemAttrs(ctx context.Context, id string) (map[string]string, error) {
	return s.studyAttrs(ctx, id, scopeSystem)
}

func (s *SQLiteStore) studyAttrs(ctx context.Context, id, scope string) (map[string]string, error) {
	if err := s.studyExists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM study_attrs WHERE study_id = ? AND scope = ?", id, scope)
	if err != nil {
		return nil, fmt.Errorf("get study attrs: %w", err)
	}
	defer rows.Close()

	return scanAttrs(rows)
}

// CreateTrial atomically allocates the next trial number for a study and
// stores a RUNNING trial record. SQLite serializes the insert, so numbers
// are collision-free under concurrent workers.
func (s *SQLiteStore) CreateTrial(ctx context.Context, studyID string) (*model.Trial, error) {
	if err := s.studyExists(ctx, studyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO trials (study_id, state, created_at) VALUES (?, ?, ?)",
		studyID, model.StateRunning, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert trial: %w", err)
	}

	number, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("trial number: %w", err)
	}

	return &model.Trial{
		Number:    number,
		StudyID:   studyID,
		State:     model.StateRunning,
		CreatedAt: now,
	}, nil
}

// SetTrialState moves a trial through its state machine. Terminal writes
// stamp finished_at; rewriting the current state is a no-op.
func (s *SQLiteStore) SetTrialState(ctx context.Context, number int64, state string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT state FROM trials WHERE number = ?", number).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get trial state: %w", err)
	}

	if !model.ValidTransition(current, state) {
		return fmt.Errorf("trial %d: %s -> %s: %w", number, current, state, ErrInvalidTransition)
	}
	if current == state {
		return nil
	}

	if model.IsTerminal(state) {
		_, err = tx.ExecContext(ctx,
			"UPDATE trials SET state = ?, finished_at = ? WHERE number = ?",
			state, time.Now().UTC(), number,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE trials SET state = ? WHERE number = ?", state, number)
	}
	if err != nil {
		return fmt.Errorf("update trial state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetTrialValue records the reported objective value on a trial. Values
// cannot be written once the trial is terminal.
func (s *SQLiteStore) SetTrialValue(ctx context.Context, number int64, value float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT state FROM trials WHERE number = ?", number).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get trial state: %w", err)
	}
	if model.IsTerminal(current) {
		return fmt.Errorf("trial %d is %s: %w", number, current, ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE trials SET value = ? WHERE number = ?", value, number); err != nil {
		return fmt.Errorf("update trial value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetTrialUserAttr sets a user attribute on a trial.
func (s *SQLiteStore) SetTrialUserAttr(ctx context.Context, number int64, key, value string) error {
	return s.setTrialAttr(ctx, number, scopeUser, key, value)
}

// SetTrialSystemAttr sets a system attribute on a trial.
func (s *SQLiteStore) SetTrialSystemAttr(ctx context.Context, number int64, key, value string) error {
	return s.setTrialAttr(ctx, number, scopeSystem, key, value)
}

func (s *SQLiteStore) setTrialAttr(ctx context.Context, number int64, scope, key, value string) error {
	if err := s.trialExists(ctx, number); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trial_attrs (number, scope, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (number, scope, key) DO UPDATE SET value = excluded.value`,
		number, scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("set trial attr: %w", err)
	}
	return nil
}

// Trial returns one trial record.
func (s *SQLiteStore) Trial(ctx context.Context, number int64) (*model.Trial, error) {
	t := &model.Trial{}
	err := s.db.QueryRowContext(ctx,
		`SELECT number, study_id, state, value, created_at, finished_at
		FROM trials WHERE number = ?`, number,
	).Scan(&t.Number, &t.StudyID, &t.State, &t.Value, &t.CreatedAt, &t.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trial: %w", err)
	}

	if err := s.loadTrialAttrs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Trials returns a study's trials ordered by ascending number.
func (s *SQLiteStore) Trials(ctx context.Context, studyID string) ([]*model.Trial, error) {
	if err := s.studyExists(ctx, studyID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number, study_id, state, value, created_at, finished_at
		FROM trials WHERE study_id = ? ORDER BY number ASC`, studyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var trials []*model.Trial
	for rows.Next() {
		t := &model.Trial{}
		if err := rows.Scan(&t.Number, &t.StudyID, &t.State, &t.Value, &t.CreatedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}

	for _, t := range trials {
		if err := s.loadTrialAttrs(ctx, t); err != nil {
			return nil, err
		}
	}
	return trials, nil
}

// BestTrial returns the COMPLETE trial with the extremal value for the
// study's direction. Ties go to the lowest trial number.
func (s *SQLiteStore) BestTrial(ctx context.Context, studyID string) (*model.Trial, error) {
	direction, err := s.StudyDirection(ctx, studyID)
	if err != nil {
		return nil, err
	}

	order := "ASC"
	if direction == model.DirectionMaximize {
		order = "DESC"
	}

	t := &model.Trial{}
	err = s.db.QueryRowContext(ctx,
		`SELECT number, study_id, state, value, created_at, finished_at
		FROM trials WHERE study_id = ? AND state = ? AND value IS NOT NULL
		ORDER BY value `+order+`, number ASC LIMIT 1`,
		studyID, model.StateComplete,
	).Scan(&t.Number, &t.StudyID, &t.State, &t.Value, &t.CreatedAt, &t.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrNoCompletedTrials)
	}
	if err != nil {
		return nil, fmt.Errorf("get best trial: %w", err)
	}

	if err := s.loadTrialAttrs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetTrainData stores the training dataset handle for a study.
func (s *SQLiteStore) SetTrainData(ctx context.Context, studyID string, ds *dataset.Dataset) error {
	return s.setData(ctx, s.train, studyID, ds)
}

// SetTestData stores the test dataset handle for a study.
func (s *SQLiteStore) SetTestData(ctx context.Context, studyID string, ds *dataset.Dataset) error {
	return s.setData(ctx, s.test, studyID, ds)
}

func (s *SQLiteStore) setData(ctx context.Context, m map[string]*dataset.Dataset, studyID string, ds *dataset.Dataset) error {
	if err := s.studyExists(ctx, studyID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m[studyID] = ds
	return nil
}

// TrainData returns the training dataset handle for a study.
func (s *SQLiteStore) TrainData(ctx context.Context, studyID string) (*dataset.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.train[studyID]
	if !ok {
		return nil, ErrNoTrainData
	}
	return ds, nil
}

// TestData returns the test dataset handle for a study.
func (s *SQLiteStore) TestData(ctx context.Context, studyID string) (*dataset.Dataset, error) {
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
func (s *SQLiteStore) Summaries(ctx context.Context) ([]*model.StudySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, direction, created_at FROM studies ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	var summaries []*model.StudySummary
	for rows.Next() {
		sum := &model.StudySummary{}
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Direction, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}

	for _, sum := range summaries {
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM trials WHERE study_id = ?", sum.ID).Scan(&sum.TrialCount); err != nil {
			return nil, fmt.Errorf("count trials: %w", err)
		}

		best, err := s.BestTrial(ctx, sum.ID)
		if err != nil && !errors.Is(err, ErrNoCompletedTrials) {
			return nil, err
		}
		sum.BestTrial = best

		if sum.UserAttrs, err = s.studyAttrs(ctx, sum.ID, scopeUser); err != nil {
			return nil, err
		}
		if sum.SystemAttrs, err = s.studyAttrs(ctx, sum.ID, scopeSystem); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// Stats aggregates counts across all studies.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{CountByState: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM studies").Scan(&stats.TotalStudies); err != nil {
		return nil, fmt.Errorf("count studies: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&stats.TotalTrials); err != nil {
		return nil, fmt.Errorf("count trials: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM trials GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		stats.CountByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}

	// Durations are computed here rather than in SQL so both backends agree
	// on the arithmetic.
	durRows, err := s.db.QueryContext(ctx,
		"SELECT created_at, finished_at FROM trials WHERE finished_at IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("list durations: %w", err)
	}
	defer durRows.Close()

	var durSum float64
	var durCount int
	for durRows.Next() {
		var created, finished time.Time
		if err := durRows.Scan(&created, &finished); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		durSum += float64(finished.Sub(created).Milliseconds())
		durCount++
	}
	if err := durRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate durations: %w", err)
	}
	if durCount > 0 {
		stats.AvgDurationMS = durSum / float64(durCount)
	}
	return stats, nil
}

// RemoveSession is a no-op: database/sql owns connection pooling, so
// workers hold no per-goroutine database resources.
func (s *SQLiteStore) RemoveSession() {}

// studyExists returns ErrNotFound when no study has the given id.
func (s *SQLiteStore) studyExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM studies WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check study: %w", err)
	}
	return nil
}

// trialExists returns ErrNotFound when no trial has the given number.
func (s *SQLiteStore) trialExists(ctx context.Context, number int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM trials WHERE number = ?", number).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("trial %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check trial: %w", err)
	}
	return nil
}

// loadTrialAttrs fills a trial's attribute maps from trial_attrs.
func (s *SQLiteStore) loadTrialAttrs(ctx context.Context, t *model.Trial) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT scope, key, value FROM trial_attrs WHERE number = ?", t.Number)
	if err != nil {
		return fmt.Errorf("get trial attrs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope, key, value string
		if err := rows.Scan(&scope, &key, &value); err != nil {
			return fmt.Errorf("scan trial attr: %w", err)
		}
		switch scope {
		case scopeUser:
			if t.UserAttrs == nil {
				t.UserAttrs = make(map[string]string)
			}
			t.UserAttrs[key] = value
		case scopeSystem:
			if t.SystemAttrs == nil {
				t.SystemAttrs = make(map[string]string)
			}
			t.SystemAttrs[key] = value
		}
	}
	return rows.Err()
}

// checkAffected maps a zero-row update to ErrNotFound.
func checkAffected(result sql.Result, subject string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return nil
}

// scanAttrs collects key/value rows into a map.
func scanAttrs(rows *sql.Rows) (map[string]string, error) {
	attrs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan attr: %w", err)
		}
		attrs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attrs: %w", err)
	}
	return attrs, nil
}
