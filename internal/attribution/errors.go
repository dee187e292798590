package attribution

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below through errors.Is
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrDegenerateInterval = errors.New("degenerate baseline interval")
)

// InvalidInputError reports malformed or missing input: no spots, or a
// timestamp that does not parse with Layout.
type InvalidInputError struct {
	Kind  string // "spot" or "signup"
	Index int    // position in the input collection, -1 when not record specific
	Value string
	Err   error
}

func (e *InvalidInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid input: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("invalid input: %s[%d] %q: %v", e.Kind, e.Index, e.Value, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// InsufficientDataError is returned when there are no signups to attribute.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient data: " + e.Reason
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// DegenerateIntervalError is returned when the baseline window
// [FirstSignup, FirstSpot) spans zero or negative whole minutes.
type DegenerateIntervalError struct {
	FirstSignup time.Time
	FirstSpot   time.Time
	Minutes     int64
}

func (e *DegenerateIntervalError) Error() string {
	return fmt.Sprintf("degenerate baseline interval: first signup %s, first spot %s (%d minutes)",
		e.FirstSignup.Format(Layout), e.FirstSpot.Format(Layout), e.Minutes)
}

func (e *DegenerateIntervalError) Is(target error) bool { return target == ErrDegenerateInterval }
