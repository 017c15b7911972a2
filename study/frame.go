package study

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/Sanyam07/diego/model"
)

// Frame is a tabular rendering of a study's trials, one row per trial.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// TrialsFrame exports all trials as a Frame. User attributes become one
// column per key. Internal-only fields (study id and system attributes) are
// included only when requested.
func (s *Study) TrialsFrame(ctx context.Context, includeInternal bool) (*Frame, error) {
	trials, err := s.Trials(ctx)
	if err != nil {
		return nil, err
	}

	userKeys := attrKeys(trials, func(t *model.Trial) map[string]string { return t.UserAttrs })
	var systemKeys []string
	if includeInternal {
		systemKeys = attrKeys(trials, func(t *model.Trial) map[string]string { return t.SystemAttrs })
	}

	columns := []string{"number", "state", "value", "created_at", "finished_at"}
	if includeInternal {
		columns = append(columns, "study_id")
	}
	for _, k := range userKeys {
		columns = append(columns, "user_"+k)
	}
	for _, k := range systemKeys {
		columns = append(columns, "system_"+k)
	}

	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		row := []string{
			strconv.FormatInt(t.Number, 10),
			t.State,
			formatValue(t.Value),
			t.CreatedAt.UTC().Format(time.RFC3339Nano),
			formatTime(t.FinishedAt),
		}
		if includeInternal {
			row = append(row, t.StudyID)
		}
		for _, k := range userKeys {
			row = append(row, t.UserAttrs[k])
		}
		for _, k := range systemKeys {
			row = append(row, t.SystemAttrs[k])
		}
		rows = append(rows, row)
	}

	return &Frame{Columns: columns, Rows: rows}, nil
}

// WriteCSV writes the frame as CSV, header first.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	for _, row := range f.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// attrKeys returns the sorted union of attribute keys across trials.
func attrKeys(trials []*model.Trial, attrs func(*model.Trial) map[string]string) []string {
	seen := make(map[string]bool)
	for _, t := range trials {
		for k := range attrs(t) {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatValue renders a trial value for export; unset values are empty.
func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// formatTime renders an optional timestamp for export; unset is empty.
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
