// Package sampler provides the trial-generation strategies a study can be
// constructed with. A sampler orders candidate proposals before they become
// trials; the uncertainty variant ranks them with a Gaussian process fitted
// on completed-trial history.
package sampler

// Observation pairs a completed trial's parameter encoding with its
// objective value.
type Observation struct {
	Params []float64
	Value  float64
}

// Sampler decides the order in which candidate proposals become trials.
type Sampler interface {
	// Pick returns a permutation of proposal indices: the order in which the
	// proposals should be materialized into trials.
	Pick(proposals [][]float64, history []Observation) []int
}

// InOrder materializes proposals exactly as listed.
type InOrder struct{}

// Pick implements Sampler.
func (InOrder) Pick(proposals [][]float64, history []Observation) []int {
	order := make([]int, len(proposals))
	for i := range order {
		order[i] = i
	}
	return order
}
