// Package maintenance runs periodic sweeps across every store.
//
// Each sweep deactivates promotions whose end date passed in every active
// store database (visited one store at a time through the router, so a
// misbehaving store only costs its own failure) and deactivates stores whose
// subscription ended.
//
// With WithRoutes the sweeper also drops router entries for stores the
// registry no longer lists as active, on every sweep and on a shorter
// RouteCheckInterval ticker.
//
//	sweeper := maintenance.NewSweeper(registry, router, provisioningSvc,
//		maintenance.WithConfig(cfg),
//		maintenance.WithRoutes(router),
//		maintenance.WithLogger(log),
//	)
//	g.Go(sweeper.Run(ctx))
package maintenance
