package model

import "time"

// Trial state constants.
const (
	StateRunning  = "RUNNING"
	StateComplete = "COMPLETE"
	StateFail     = "FAIL"
	StatePruned   = "PRUNED"
)

// Well-known trial system attribute keys.
const (
	AttrFailReason = "fail_reason"
	AttrCandidate  = "candidate"
	AttrParams     = "params"
)

// validTransitions maps each state to the set of states it may transition to.
// Terminal states have no targets: a finished trial never changes again.
var validTransitions = map[string]map[string]bool{
	StateRunning: {
		StateComplete: true,
		StateFail:     true,
		StatePruned:   true,
	},
}

// ValidTransition reports whether transitioning from one state to another is
// allowed. Writing a state onto itself is treated as a valid no-op.
func ValidTransition(from, to string) bool {
	if from == to {
		return true
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a trial state is final.
func IsTerminal(state string) bool {
	return state == StateComplete || state == StateFail || state == StatePruned
}

// Trial represents one recorded optimization attempt within a study.
type Trial struct {
	Number      int64             `json:"number"`
	StudyID     string            `json:"study_id"`
	State       string            `json:"state"`
	Value       *float64          `json:"value,omitempty"`
	SystemAttrs map[string]string `json:"system_attrs,omitempty"`
	UserAttrs   map[string]string `json:"user_attrs,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}
