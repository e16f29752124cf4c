// Package tenant carries the active store (tenant) code through a unit of work.
//
// A unit of work is an inbound request, one iteration of a scheduled job, or
// one step of an administrative fan-out. The active code lives in the
// context.Context of that unit of work and nowhere else: there is no global
// or goroutine-wide slot, so two requests running concurrently can never
// observe each other's tenant, and a reused server goroutine can never inherit
// a stale one.
//
// # Usage
//
//	import "github.com/dmitrymomot/storefleet/pkg/tenant"
//
//	// HTTP interceptor: reads X-Tenant-ID, binds it for the handler only.
//	mw := tenant.Middleware(tenant.NewHeaderResolver(""),
//		tenant.WithSkipPaths("/health", "/admin"),
//	)
//	router.Use(mw)
//
//	// Jobs and admin code bind explicitly with guaranteed release.
//	err := tenant.Scope(ctx, "downtown-01", func(ctx context.Context) error {
//		_, err := db.Exec(ctx, "UPDATE promotions SET active = false WHERE ends_at < now()")
//		return err
//	})
//
// The three primitive operations map onto context values:
//
//   - WithCode binds a code (set)
//   - CodeFromContext reads it (get)
//   - Clear shadows any inherited binding (clear)
//
// Release is structural: the binding is attached to a derived context, and the
// parent context is never modified, so leaving a tenant bound after the unit
// of work ends is impossible by construction.
//
// # Error Handling
//
//   - ErrNoTenantBound: a tenant-scoped operation ran outside any binding
//   - ErrInvalidIdentifier: malformed code (pattern [a-z0-9_-], 3 to 50 chars)
//   - ErrUnitPanicked: the function passed to Scope panicked
package tenant
