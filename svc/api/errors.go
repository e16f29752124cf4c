package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/storefleet/pkg/binder"
	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/handler"
	"github.com/dmitrymomot/storefleet/pkg/ratelimiter"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/provisioning"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// ErrMissingDependency is returned by New when a required dependency is nil.
var ErrMissingDependency = errors.New("api dependency is missing")

var (
	errStoreNotFound    = handler.NewHTTPError(http.StatusNotFound, "store_not_found", "store not found")
	errStoreInactive    = handler.NewHTTPError(http.StatusForbidden, "store_inactive", "store is inactive")
	errStoreUnavailable = handler.NewHTTPError(http.StatusServiceUnavailable, "store_unavailable", "service unavailable for this store")
	errStoreRequired    = handler.NewHTTPError(http.StatusBadRequest, "store_required", "store identifier is required")
	errStoreInvalid     = handler.NewHTTPError(http.StatusBadRequest, "store_invalid", "invalid store identifier")
	errInvalidStatus    = handler.NewHTTPError(http.StatusConflict, "invalid_transition", "store status does not allow this operation")
	errStoresUnlisted   = handler.NewHTTPError(http.StatusServiceUnavailable, "stores_unavailable", "store directory unavailable")
	errRateLimited      = handler.NewHTTPError(http.StatusTooManyRequests, "rate_limited", "too many requests for this store")
)

// classify maps domain errors to HTTP errors. Checks run from the most
// specific to the most general, so a conflict surfaced by a failed
// provisioning step still answers 409.
func classify(err error) (handler.HTTPError, bool) {
	var conflict *tenant.ConflictError
	var perr *provisioning.Error
	var terr *provisioning.TeardownError

	switch {
	case errors.As(err, &conflict):
		return handler.NewHTTPError(http.StatusConflict, conflictCode(conflict), conflict.Error()), true
	case tenant.IsConflict(err):
		return handler.NewHTTPError(http.StatusConflict, "conflict", err.Error()), true
	case binder.IsBindingError(err):
		return handler.NewHTTPError(http.StatusBadRequest, "bad_request", err.Error()), true
	case errors.Is(err, provisioning.ErrInvalidRequest):
		return handler.NewHTTPError(http.StatusUnprocessableEntity, "validation_error", err.Error()), true
	case errors.Is(err, ratelimiter.ErrLimitExceeded):
		return errRateLimited, true
	case errors.Is(err, pkgtenant.ErrInvalidIdentifier):
		return errStoreInvalid, true
	case errors.Is(err, pkgtenant.ErrNoTenantBound):
		return errStoreRequired, true
	case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, dbrouter.ErrUnknownTenant):
		return errStoreNotFound, true
	case errors.Is(err, dbrouter.ErrTenantInactive):
		return errStoreInactive, true
	case errors.Is(err, tenant.ErrInvalidTransition):
		return errInvalidStatus, true
	case dbrouter.IsRetryable(err):
		return errStoreUnavailable, true
	case errors.Is(err, fanout.ErrListTenants):
		return errStoresUnlisted, true
	case errors.As(err, &perr):
		return handler.NewHTTPError(http.StatusInternalServerError, "provisioning_failed",
			fmt.Sprintf("store provisioning failed at step %q", perr.Step())), true
	case errors.As(err, &terr):
		return handler.NewHTTPError(http.StatusInternalServerError, "teardown_failed",
			fmt.Sprintf("store teardown incomplete (%d step(s) failed)", len(terr.Failures))), true
	}
	return handler.HTTPError{}, false
}

func conflictCode(c *tenant.ConflictError) string {
	if c.Field == tenant.FieldCode {
		return "duplicate_code"
	}
	return "duplicate_owner_" + c.Field
}
