package provisioning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/storefleet/pkg/saga"
)

var (
	ErrProvisioningFailed = errors.New("tenant provisioning failed")
	ErrInvalidRequest     = errors.New("invalid provisioning request")
	ErrTeardownFailed     = errors.New("tenant teardown incomplete")
	ErrMissingDependency  = errors.New("provisioning service dependency is missing")
)

// Error is a failed Provision: the step that failed, why, and how the rollback went.
type Error struct {
	Code string
	saga *saga.Error
}

func (e *Error) Error() string {
	status := "rolled back"
	if !e.RolledBack() {
		status = "rollback incomplete"
	}
	return fmt.Sprintf("provision %s: %s at step %q: %v (%s)",
		e.Code, ErrProvisioningFailed.Error(), e.saga.Step, e.saga.Err, status)
}

func (e *Error) Unwrap() []error {
	return []error{ErrProvisioningFailed, e.saga}
}

// Step returns the name of the step that failed.
func (e *Error) Step() string { return e.saga.Step }

// Cause returns the error of the failed step.
func (e *Error) Cause() error { return e.saga.Err }

// RolledBack reports whether every completed step was compensated.
func (e *Error) RolledBack() bool { return e.saga.RolledBack() }

// Journal returns the per-step outcomes of the run.
func (e *Error) Journal() *saga.Journal { return e.saga.Journal }

// TeardownStepError is one failed teardown step.
type TeardownStepError struct {
	Step string
	Err  error
}

// TeardownError lists every teardown step that failed.
// RecordDeleted tells whether the registry record was removed anyway.
type TeardownError struct {
	Code          string
	Failures      []TeardownStepError
	RecordDeleted bool
}

func (e *TeardownError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Step, f.Err))
	}
	return fmt.Sprintf("delete %s: %s: %s", e.Code, ErrTeardownFailed.Error(), strings.Join(parts, "; "))
}

func (e *TeardownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrTeardownFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failed reports whether step failed.
func (e *TeardownError) Failed(step string) bool {
	for _, f := range e.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}
