package dbrouter

import (
	"errors"

	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

var (
	// ErrNoTenantBound is returned when no tenant is bound and no default pool is configured.
	ErrNoTenantBound = tenant.ErrNoTenantBound

	// ErrUnknownTenant is returned when the bound code has no route.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrTenantInactive is returned when the bound code belongs to a deactivated tenant.
	ErrTenantInactive = errors.New("tenant is inactive")

	// ErrPoolExhausted is returned when no connection could be acquired within the acquire timeout.
	ErrPoolExhausted = errors.New("tenant connection pool exhausted")

	// ErrConnectionFailed is returned when the tenant database could not be reached.
	ErrConnectionFailed = errors.New("tenant database connection failed")

	// ErrRouteExists is returned by AddRoute when the code is already routed.
	ErrRouteExists = errors.New("route already registered")

	// ErrDrainTimeout is returned when leased connections did not drain in time.
	// The pool is still closed, once the last lease is released.
	ErrDrainTimeout = errors.New("timed out draining tenant pool")

	// ErrRouterClosed is returned after Close.
	ErrRouterClosed = errors.New("router is closed")
)

// IsRetryable reports whether err is a transient per-tenant infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrConnectionFailed)
}
