// Package httpserver runs an http.Server with graceful shutdown and lifecycle hooks.
//
// Run blocks until its context is cancelled or Shutdown is called, then shuts
// the server down within the configured shutdown timeout. Stop hooks run
// after the listener has closed and in-flight requests have finished, and
// receive the same deadline, which makes them the place to release resources
// the handlers depended on:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(func(ctx context.Context, _ *slog.Logger) error {
//			return router.Close(ctx)
//		}),
//	)
//	g.Go(func() error { return srv.Run(ctx, api.Handler()) })
//
// Signal handling belongs to the caller, usually via signal.NotifyContext.
//
// HealthCheckHandler serves liveness (no checks) and readiness (all checks
// must pass) checks.
//
// Listen failures wrap ErrStart; shutdown and stop hook failures wrap
// ErrShutdown.
package httpserver
