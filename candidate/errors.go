package candidate

import (
	"context"
	"errors"
	"fmt"
)

// Failure class constants. A class labels the category of a fit/score
// failure so optimize callers can opt into tolerating it; any error without
// an explicit class reports ClassInternal.
const (
	ClassValue    = "value"
	ClassData     = "data"
	ClassResource = "resource"
	ClassInternal = "internal"
)

// ErrPruned signals that a fit/score unit decided to stop its trial early.
// The engine records the trial as PRUNED rather than FAIL.
var ErrPruned = errors.New("trial pruned")

// classedError attaches a failure class to an underlying error.
type classedError struct {
	class string
	err   error
}

func (e *classedError) Error() string { return e.err.Error() }
func (e *classedError) Unwrap() error { return e.err }

// New returns an error carrying the given failure class.
func New(class, msg string) error {
	return &classedError{class: class, err: errors.New(msg)}
}

// Errorf returns a formatted error carrying the given failure class.
func Errorf(class, format string, args ...any) error {
	return &classedError{class: class, err: fmt.Errorf(format, args...)}
}

// Wrap attaches a failure class to err. Wrapping nil returns nil.
func Wrap(class string, err error) error {
	if err == nil {
		return nil
	}
	return &classedError{class: class, err: err}
}

// ClassOf returns the failure class recorded on err, or ClassInternal when
// none is. Context cancellation and deadline errors carry no class at all:
// they are abort signals, never catchable trial failures.
func ClassOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}
	var ce *classedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassInternal
}

// Catch is the closed set of failure classes an optimize call tolerates.
// A caught failure marks its trial FAIL and the run continues; anything
// outside the set aborts the run.
type Catch map[string]bool

// CatchAll returns a Catch covering every failure class. This is the
// optimize default.
func CatchAll() Catch {
	return Catch{
		ClassValue:    true,
		ClassData:     true,
		ClassResource: true,
		ClassInternal: true,
	}
}

// CatchOnly returns a Catch covering exactly the given classes.
func CatchOnly(classes ...string) Catch {
	c := make(Catch, len(classes))
	for _, cl := range classes {
		c[cl] = true
	}
	return c
}

// Has reports whether the class is in the set. The empty class (context
// errors) is never caught.
func (c Catch) Has(class string) bool {
	if class == "" {
		return false
	}
	return c[class]
}
