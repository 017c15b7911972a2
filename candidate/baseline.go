package candidate

import "context"

// Baseline is a reference fit/score unit: it learns the most common training
// label and scores by accuracy against the test labels. It exists so
// deployments and tests have a trivially correct unit to run; real
// model-search units live outside this module.
type Baseline struct {
	majority float64
	fitted   bool
}

// NewBaseline returns an unfitted Baseline.
func NewBaseline() *Baseline {
	return &Baseline{}
}

// Fit records the most common label. Ties go to the label seen first.
func (b *Baseline) Fit(ctx context.Context, features [][]float64, labels []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(labels) == 0 {
		return New(ClassData, "baseline: no training labels")
	}

	counts := make(map[float64]int, len(labels))
	var best float64
	bestCount := 0
	for _, l := range labels {
		counts[l]++
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}

	b.majority = best
	b.fitted = true
	return nil
}

// Score returns the fraction of test labels matching the majority label.
func (b *Baseline) Score(ctx context.Context, features [][]float64, labels []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !b.fitted {
		return 0, New(ClassValue, "baseline: score before fit")
	}
	if len(labels) == 0 {
		return 0, New(ClassData, "baseline: no test labels")
	}

	hits := 0
	for _, l := range labels {
		if l == b.majority {
			hits++
		}
	}
	return float64(hits) / float64(len(labels)), nil
}

// BaselineGenerator returns a Generator producing fresh Baseline units.
func BaselineGenerator() Generator {
	return Generator{
		Name:   "baseline",
		Params: []float64{0},
		New:    func() Candidate { return NewBaseline() },
	}
}
