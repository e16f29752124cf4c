package fanout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPartialAggregation is wrapped by PartialError.
	ErrPartialAggregation = errors.New("one or more tenants failed during fan-out")

	// ErrListTenants is returned when the tenant source itself fails.
	ErrListTenants = errors.New("failed to list tenants for fan-out")

	// ErrInvalidLimit is returned by ForEachConcurrent for a non-positive limit.
	ErrInvalidLimit = errors.New("concurrency limit must be positive")
)

// Failure is the error of one tenant.
type Failure struct {
	Code string
	Err  error
}

// PartialError reports the tenants that failed together with the results of those that did not.
type PartialError[T any] struct {
	Failures []Failure
	Result   *Result[T]
}

func (e *PartialError[T]) Error() string {
	codes := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		codes = append(codes, f.Code)
	}
	return fmt.Sprintf("%s: %d of %d tenants failed (%s)",
		ErrPartialAggregation.Error(),
		len(e.Failures),
		len(e.Failures)+len(e.Result.Items),
		strings.Join(codes, ", "),
	)
}

// Unwrap exposes ErrPartialAggregation and every per-tenant error to errors.Is.
func (e *PartialError[T]) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrPartialAggregation)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Err returns the error recorded for code, or nil.
func (e *PartialError[T]) Err(code string) error {
	for _, f := range e.Failures {
		if f.Code == code {
			return f.Err
		}
	}
	return nil
}
