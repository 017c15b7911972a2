package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInOrderPick(t *testing.T) {
	s := InOrder{}
	order := s.Pick([][]float64{{1}, {2}, {3}}, nil)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestUncertaintyEmptyHistory(t *testing.T) {
	u := NewUncertainty(1.0)
	order := u.Pick([][]float64{{1}, {2}, {3}}, nil)
	assert.Equal(t, []int{0, 1, 2}, order, "no history should keep listed order")
}

func TestUncertaintyPrefersUnexplored(t *testing.T) {
	u := NewUncertainty(1.0)

	// History clusters around 0; the proposal at 5 is far from every
	// observation and should be picked first.
	history := []Observation{
		{Params: []float64{0}, Value: 0.5},
		{Params: []float64{0.1}, Value: 0.6},
		{Params: []float64{-0.1}, Value: 0.4},
	}
	order := u.Pick([][]float64{{0}, {5}}, history)

	require.Len(t, order, 2)
	assert.Equal(t, 1, order[0], "far proposal should rank first")
	assert.Equal(t, 0, order[1])
}

func TestUncertaintyPickIsPermutation(t *testing.T) {
	u := NewUncertainty(0.5)
	proposals := [][]float64{{0}, {1}, {2}, {3}, {4}}
	history := []Observation{
		{Params: []float64{1}, Value: 1},
		{Params: []float64{3}, Value: 2},
	}

	order := u.Pick(proposals, history)
	require.Len(t, order, len(proposals))

	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(proposals))
		assert.False(t, seen[idx], "index %d appears twice", idx)
		seen[idx] = true
	}
}

func TestGaussianProcessNoObservations(t *testing.T) {
	gp := newGaussianProcess(1.0)
	mean, variance := gp.Predict([]float64{1, 2})
	assert.Zero(t, mean)
	assert.Equal(t, 1.0, variance, "unobserved model should report maximal uncertainty")
}

func TestGaussianProcessVarianceShrinksNearData(t *testing.T) {
	gp := newGaussianProcess(1.0)
	gp.Update([]float64{0}, 10)

	_, nearVar := gp.Predict([]float64{0})
	_, farVar := gp.Predict([]float64{10})

	assert.Less(t, nearVar, farVar, "variance at an observed point should be below a distant one")
}

func TestGaussianProcessMeanTracksObservations(t *testing.T) {
	gp := newGaussianProcess(1.0)
	gp.Update([]float64{0}, 4)

	mean, _ := gp.Predict([]float64{0})
	assert.InDelta(t, 4, mean, 1e-9, "mean at the single observed point")

	farMean, _ := gp.Predict([]float64{100})
	assert.InDelta(t, 0, farMean, 1e-9, "mean far from all observations decays to zero")
}

func TestGaussianProcessDefaultSigma(t *testing.T) {
	gp := newGaussianProcess(-3)
	assert.Equal(t, 1.0, gp.sigma)
}
