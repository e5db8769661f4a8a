package reconcile

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument indicates the caller violated the contract of Reconcile.
var ErrInvalidArgument = errors.New("reconcile: invalid argument")

// ArgumentError describes which argument was invalid.
type ArgumentError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("reconcile: invalid %s: %s", e.Field, e.Message)
}

// Is implements errors.Is support.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func (w Window) validate() error {
	if w.Start.IsZero() {
		return &ArgumentError{Field: "window", Message: "start is not set"}
	}
	if w.End.IsZero() {
		return &ArgumentError{Field: "window", Message: "end is not set"}
	}
	if truncateDay(w.Start).After(truncateDay(w.End)) {
		return &ArgumentError{
			Field:   "window",
			Message: fmt.Sprintf("start %s is after end %s", formatDate(w.Start), formatDate(w.End)),
		}
	}
	return nil
}
