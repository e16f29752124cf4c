// Package logger builds log/slog loggers with environment presets and
// context-derived attributes.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "storefleet"),
//		logger.WithContextExtractors(
//			tenant.LoggerExtractor(),
//			requestid.LoggerExtractor(),
//		),
//	)
//	logger.SetAsDefault(log)
//
// Extractors run for every record logged with a context, so a record made
// inside a tenant unit of work carries "tenant" and one made while serving a
// request carries "request_id" without the caller adding them.
//
// The attribute helpers (Error, Tenant, Step, Duration, ...) keep key names
// consistent across packages.
package logger
