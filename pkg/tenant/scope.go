package tenant

import (
	"context"
	"errors"
	"fmt"
)

// Scope runs fn as one unit of work bound to code.
//
// The binding lives only in the context handed to fn. Once Scope returns,
// the caller's context is exactly what it was before, whether fn returned
// normally, returned an error, or panicked. A panic is converted into an
// error wrapping ErrUnitPanicked so fan-out loops can keep going.
func Scope(ctx context.Context, code string, fn func(ctx context.Context) error) (err error) {
	if code == "" {
		return ErrNoTenantBound
	}
	if !IsValidCode(code) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, code)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrUnitPanicked, fmt.Errorf("tenant %s: %v", code, r))
		}
	}()

	return fn(WithCode(ctx, code))
}

// ScopeValue is Scope for functions that produce a value.
func ScopeValue[T any](ctx context.Context, code string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Scope(ctx, code, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
