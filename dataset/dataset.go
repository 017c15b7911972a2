// Package dataset holds the feature/label pairs a study's trials fit and
// score against, with shape validation at construction.
package dataset

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when features and labels disagree on row
// count, when a dataset is empty, or when feature rows are ragged.
var ErrShapeMismatch = errors.New("dataset shape mismatch")

// Dataset is an immutable pair of feature rows and labels. Workers read it
// concurrently during optimization; callers must not mutate it after handing
// it to a store.
type Dataset struct {
	Features [][]float64
	Labels   []float64
}

// New validates the shapes of features and labels and returns a Dataset.
func New(features [][]float64, labels []float64) (*Dataset, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("empty features: %w", ErrShapeMismatch)
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("%d feature rows vs %d labels: %w", len(features), len(labels), ErrShapeMismatch)
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return nil, fmt.Errorf("feature row %d has width %d, want %d: %w", i, len(row), width, ErrShapeMismatch)
		}
	}
	return &Dataset{Features: features, Labels: labels}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// Width returns the number of feature columns.
func (d *Dataset) Width() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// Subset returns a new Dataset containing the rows at the given indices, in
// order. Rows are shared, not copied.
func (d *Dataset) Subset(idx []int) (*Dataset, error) {
	features := make([][]float64, 0, len(idx))
	labels := make([]float64, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= d.Len() {
			return nil, fmt.Errorf("subset index %d out of range [0,%d)", i, d.Len())
		}
		features = append(features, d.Features[i])
		labels = append(labels, d.Labels[i])
	}
	return New(features, labels)
}
