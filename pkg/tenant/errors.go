package tenant

import "errors"

var (
	// ErrNoTenantBound is returned when a tenant-scoped operation runs outside any bound unit of work.
	ErrNoTenantBound = errors.New("no tenant bound to context")

	// ErrInvalidIdentifier is returned when the tenant code format is invalid.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrUnitPanicked is returned by Scope when the scoped function panics.
	ErrUnitPanicked = errors.New("tenant unit of work panicked")
)
