package sampler

import "sort"

// Uncertainty orders proposals by posterior variance, most uncertain first,
// so the least-explored candidate encodings are tried earliest. With no
// history it degrades to listed order.
type Uncertainty struct {
	sigma float64
}

// NewUncertainty returns an uncertainty sampler with the given RBF kernel
// width. Non-positive widths fall back to the default.
func NewUncertainty(sigma float64) *Uncertainty {
	return &Uncertainty{sigma: sigma}
}

// Pick implements Sampler.
func (u *Uncertainty) Pick(proposals [][]float64, history []Observation) []int {
	order := make([]int, len(proposals))
	for i := range order {
		order[i] = i
	}
	if len(history) == 0 || len(proposals) < 2 {
		return order
	}

	gp := newGaussianProcess(u.sigma)
	for _, obs := range history {
		gp.Update(obs.Params, obs.Value)
	}

	variances := make([]float64, len(proposals))
	for i, p := range proposals {
		_, variances[i] = gp.Predict(p)
	}

	// Stable sort keeps listed order for equally uncertain proposals.
	sort.SliceStable(order, func(a, b int) bool {
		return variances[order[a]] > variances[order[b]]
	})
	return order
}
