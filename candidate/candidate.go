package candidate

import "context"

// Candidate is the interface every fit/score unit must implement. Fit and
// Score may run for a long time and may fail; the engine never interrupts a
// call mid-flight, so implementations should honor ctx cancellation at their
// own convenient boundaries.
type Candidate interface {
	// Fit trains the unit on the study's training set.
	Fit(ctx context.Context, features [][]float64, labels []float64) error

	// Score evaluates the trained unit on the study's test set and returns
	// the objective value.
	Score(ctx context.Context, features [][]float64, labels []float64) (float64, error)
}

// FitFunc and ScoreFunc adapt plain functions to the two Candidate methods.
type (
	FitFunc   func(ctx context.Context, features [][]float64, labels []float64) error
	ScoreFunc func(ctx context.Context, features [][]float64, labels []float64) (float64, error)
)

// Funcs bundles a FitFunc and a ScoreFunc into a Candidate. A nil Fit is a
// no-op; Score is required.
type Funcs struct {
	FitFn   FitFunc
	ScoreFn ScoreFunc
}

// Fit implements Candidate.
func (f Funcs) Fit(ctx context.Context, features [][]float64, labels []float64) error {
	if f.FitFn == nil {
		return nil
	}
	return f.FitFn(ctx, features, labels)
}

// Score implements Candidate.
func (f Funcs) Score(ctx context.Context, features [][]float64, labels []float64) (float64, error) {
	return f.ScoreFn(ctx, features, labels)
}

// Generator proposes one candidate configuration for trial generation.
// Params is the numeric encoding samplers rank when ordering proposals.
type Generator struct {
	Name   string           `json:"name"`
	Params []float64        `json:"params,omitempty"`
	New    func() Candidate `json:"-"`
}
