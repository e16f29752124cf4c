package dbrouter

import (
	"log/slog"
	"time"
)

// Config holds router tuning read from the environment.
type Config struct {
	AcquireTimeout time.Duration `env:"ROUTER_ACQUIRE_TIMEOUT" envDefault:"5s"` // AcquireTimeout bounds waiting for a free connection.
	DrainTimeout   time.Duration `env:"ROUTER_DRAIN_TIMEOUT" envDefault:"30s"`  // DrainTimeout bounds waiting for leases before a removed pool is closed.
}

// Option configures the Router.
type Option func(*Router)

// WithConfig applies timeouts from cfg.
func WithConfig(cfg Config) Option {
	return func(r *Router) {
		if cfg.AcquireTimeout > 0 {
			r.acquireTimeout = cfg.AcquireTimeout
		}
		if cfg.DrainTimeout > 0 {
			r.drainTimeout = cfg.DrainTimeout
		}
	}
}

// WithDefault routes calls made without a bound tenant to pool (typically the master store).
// Without it such calls fail with ErrNoTenantBound. The router never closes this pool.
func WithDefault(pool Pool) Option {
	return func(r *Router) {
		if pool != nil {
			r.fallback = newRoute("", pool)
		}
	}
}

// WithLoader enables lazy route creation on a routing miss.
func WithLoader(loader Loader) Option {
	return func(r *Router) {
		r.loader = loader
	}
}

// WithAcquireTimeout bounds how long a call waits for a free connection.
func WithAcquireTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.acquireTimeout = d
	}
}

// WithDrainTimeout bounds how long RemoveRoute waits for leased connections.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.drainTimeout = d
	}
}

// WithLogger sets the router logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}
