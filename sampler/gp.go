package sampler

import (
	"math"
	"sync"
)

// gaussianProcess is a lightweight Gaussian process regressor over parameter
// encodings. The posterior variance at a point measures how little the
// observed history says about it.
type gaussianProcess struct {
	mu    sync.RWMutex
	xs    [][]float64
	ys    []float64
	sigma float64
}

// newGaussianProcess returns an empty model with the given RBF kernel width.
// Non-positive widths fall back to 1.0, which suits normalized encodings.
func newGaussianProcess(sigma float64) *gaussianProcess {
	if sigma <= 0 {
		sigma = 1.0
	}
	return &gaussianProcess{sigma: sigma}
}

// rbf is the radial basis function kernel. Caller holds the lock.
func (gp *gaussianProcess) rbf(x1, x2 []float64) float64 {
	var sum float64
	for i := range x1 {
		diff := x1[i] - x2[i]
		sum += diff * diff
	}
	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// Update records an observation. The point is copied.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	point := make([]float64, len(x))
	copy(point, x)
	gp.xs = append(gp.xs, point)
	gp.ys = append(gp.ys, y)
}

// Predict estimates the value and its uncertainty at x. With no
// observations it returns (0, 1): maximal uncertainty.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	n := len(gp.xs)
	if n == 0 {
		return 0, 1
	}

	k := make([]float64, n)
	for i := range gp.xs {
		k[i] = gp.rbf(x, gp.xs[i])
	}

	var sum float64
	for i := range k {
		sum += k[i] * gp.ys[i]
	}
	mean = sum / float64(n)

	variance = 1.0
	for i := range k {
		for j := range k {
			variance -= k[i] * k[j] / float64(n)
		}
	}
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}
