package tenant

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

// Middleware binds the tenant code extracted by resolver to the request context.
//
// The binding is attached to a derived request only, so it is released when
// the downstream handler returns, including when it panics. Nothing outlives
// the request, which keeps pooled server goroutines from inheriting a tenant.
func Middleware(resolver Resolver, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			code, err := resolver(r)
			if err != nil {
				cfg.logger.WarnContext(r.Context(), "tenant resolution failed",
					slog.String("path", r.URL.Path), logger.Error(err))
				cfg.errorHandler(w, r, err)
				return
			}

			if code == "" {
				if cfg.required {
					cfg.errorHandler(w, r, ErrNoTenantBound)
					return
				}
				next.ServeHTTP(w, r.WithContext(Clear(r.Context())))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCode(r.Context(), code)))
		})
	}
}

// RequireTenant ensures a tenant is bound before the request reaches next.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := CodeFromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantBound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
