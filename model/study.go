package model

import "time"

// Study direction constants.
const (
	DirectionMinimize = "minimize"
	DirectionMaximize = "maximize"
)

// ValidDirection reports whether d is a known optimization direction.
func ValidDirection(d string) bool {
	return d == DirectionMinimize || d == DirectionMaximize
}

// Better reports whether value a strictly beats value b under the given
// direction. Ties are not better, so the first-recorded extremum wins.
func Better(direction string, a, b float64) bool {
	if direction == DirectionMaximize {
		return a > b
	}
	return a < b
}

// Study represents a named optimization task.
type Study struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// StudySummary aggregates a study with its trial history highlights.
type StudySummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Direction   string            `json:"direction"`
	TrialCount  int               `json:"trial_count"`
	BestTrial   *Trial            `json:"best_trial,omitempty"`
	UserAttrs   map[string]string `json:"user_attrs,omitempty"`
	SystemAttrs map[string]string `json:"system_attrs,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Stats aggregates counts across every study in a store.
type Stats struct {
	TotalStudies  int            `json:"total_studies"`
	TotalTrials   int            `json:"total_trials"`
	CountByState  map[string]int `json:"count_by_state"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}
