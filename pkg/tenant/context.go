package tenant

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// binding is stored by value so a cleared context can shadow a bound parent.
type binding struct {
	code  string
	bound bool
}

// WithCode binds the tenant code to the returned context.
// The parent context is left untouched, so the binding ends when the
// returned context goes out of scope.
func WithCode(ctx context.Context, code string) context.Context {
	if code == "" {
		return Clear(ctx)
	}
	return context.WithValue(ctx, contextKey{}, binding{code: code, bound: true})
}

// CodeFromContext returns the tenant code bound to the context.
// Returns "", false if no tenant is bound or the binding was cleared.
func CodeFromContext(ctx context.Context) (string, bool) {
	b, ok := ctx.Value(contextKey{}).(binding)
	if !ok || !b.bound {
		return "", false
	}
	return b.code, true
}

// Clear returns a context in which no tenant is bound, even if a parent had one.
// Calling it repeatedly is harmless.
func Clear(ctx context.Context) context.Context {
	if _, ok := CodeFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, binding{})
}

// MustCode returns the bound tenant code.
// Panics if no tenant is bound. Use this only where a missing binding is a programming error.
func MustCode(ctx context.Context) string {
	code, ok := CodeFromContext(ctx)
	if !ok {
		panic("tenant: no tenant bound to context")
	}
	return code
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the bound tenant code.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if code, ok := CodeFromContext(ctx); ok {
			return slog.String("tenant", code), true
		}
		return slog.Attr{}, false
	}
}
