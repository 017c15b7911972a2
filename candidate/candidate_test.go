package candidate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sanyam07/diego/candidate"
)

func TestClassOfClassedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"new", candidate.New(candidate.ClassValue, "bad value"), candidate.ClassValue},
		{"errorf", candidate.Errorf(candidate.ClassData, "row %d", 3), candidate.ClassData},
		{"wrap", candidate.Wrap(candidate.ClassResource, errors.New("oom")), candidate.ClassResource},
		{"wrapped deeper", fmt.Errorf("fit: %w", candidate.New(candidate.ClassValue, "bad")), candidate.ClassValue},
		{"plain error", errors.New("anything"), candidate.ClassInternal},
		{"context canceled", context.Canceled, ""},
		{"wrapped deadline", fmt.Errorf("score: %w", context.DeadlineExceeded), ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := candidate.ClassOf(tc.err); got != tc.want {
				t.Errorf("ClassOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := candidate.Wrap(candidate.ClassValue, nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestCatchAll(t *testing.T) {
	c := candidate.CatchAll()
	for _, class := range []string{
		candidate.ClassValue, candidate.ClassData,
		candidate.ClassResource, candidate.ClassInternal,
	} {
		if !c.Has(class) {
			t.Errorf("CatchAll().Has(%q) = false, want true", class)
		}
	}
	if c.Has("") {
		t.Error("CatchAll().Has(\"\") = true; context errors must never be catchable")
	}
}

func TestCatchOnly(t *testing.T) {
	c := candidate.CatchOnly(candidate.ClassValue)
	if !c.Has(candidate.ClassValue) {
		t.Error("Has(ClassValue) = false, want true")
	}
	if c.Has(candidate.ClassInternal) {
		t.Error("Has(ClassInternal) = true, want false")
	}
}

func TestFuncsAdapter(t *testing.T) {
	ctx := context.Background()
	fitted := false
	c := candidate.Funcs{
		FitFn: func(ctx context.Context, features [][]float64, labels []float64) error {
			fitted = true
			return nil
		},
		ScoreFn: func(ctx context.Context, features [][]float64, labels []float64) (float64, error) {
			return 0.5, nil
		},
	}

	if err := c.Fit(ctx, nil, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !fitted {
		t.Error("FitFn was not invoked")
	}

	v, err := c.Score(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if v != 0.5 {
		t.Errorf("Score = %v, want 0.5", v)
	}
}

func TestFuncsNilFit(t *testing.T) {
	c := candidate.Funcs{
		ScoreFn: func(ctx context.Context, features [][]float64, labels []float64) (float64, error) {
			return 1, nil
		},
	}
	if err := c.Fit(context.Background(), nil, nil); err != nil {
		t.Errorf("Fit with nil FitFn = %v, want nil", err)
	}
}

func TestBaseline(t *testing.T) {
	ctx := context.Background()
	b := candidate.NewBaseline()

	train := [][]float64{{1}, {2}, {3}, {4}}
	if err := b.Fit(ctx, train, []float64{1, 1, 1, 0}); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// Majority label is 1; three of four test labels match.
	v, err := b.Score(ctx, [][]float64{{1}, {2}, {3}, {4}}, []float64{1, 1, 1, 0})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if v != 0.75 {
		t.Errorf("Score = %v, want 0.75", v)
	}
}

func TestBaselineScoreBeforeFit(t *testing.T) {
	b := candidate.NewBaseline()
	_, err := b.Score(context.Background(), [][]float64{{1}}, []float64{1})
	if err == nil {
		t.Fatal("Score before Fit succeeded, want error")
	}
	if got := candidate.ClassOf(err); got != candidate.ClassValue {
		t.Errorf("ClassOf = %q, want %q", got, candidate.ClassValue)
	}
}

func TestBaselineEmptyTrainingSet(t *testing.T) {
	b := candidate.NewBaseline()
	err := b.Fit(context.Background(), nil, nil)
	if got := candidate.ClassOf(err); got != candidate.ClassData {
		t.Errorf("ClassOf = %q, want %q", got, candidate.ClassData)
	}
}
