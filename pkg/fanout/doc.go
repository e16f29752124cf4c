// Package fanout runs one operation against every tenant and gathers the results.
//
// Each tenant is processed inside tenant.Scope, so the function sees a context
// bound to that tenant only and the caller's context is never left bound.
// A failing or panicking tenant does not stop the scan: its error is recorded
// and the remaining tenants are still processed.
//
//	res, err := fanout.ForEach(ctx, registry.ActiveCodes, func(ctx context.Context, code string) ([]Account, error) {
//		return accounts.List(ctx, router)
//	})
//	var partial *fanout.PartialError[[]Account]
//	if errors.As(err, &partial) {
//		// res still holds every tenant that succeeded
//	}
//
// ForEachConcurrent bounds parallelism with an errgroup limit.
package fanout
