package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrStepFailed wraps every failure returned by Run.
	ErrStepFailed = errors.New("saga step failed")

	// ErrCompensationFailed is reported when one or more compensations did not succeed.
	ErrCompensationFailed = errors.New("saga compensation failed")

	// ErrPanicked marks a step or compensation that panicked.
	ErrPanicked = errors.New("saga action panicked")
)

// Error describes a failed run: the step that failed, its cause, and the
// journal showing which compensations succeeded.
type Error struct {
	Step    string
	Err     error
	Journal *Journal
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
	if cerr := e.Journal.CompensationErrors(); cerr != nil {
		msg += fmt.Sprintf(" (rollback incomplete: %v)", cerr)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrStepFailed, e.Err}
	if cerr := e.Journal.CompensationErrors(); cerr != nil {
		errs = append(errs, cerr)
	}
	return errs
}

// RolledBack reports whether every completed step was undone.
func (e *Error) RolledBack() bool {
	return e.Journal.RolledBack()
}
