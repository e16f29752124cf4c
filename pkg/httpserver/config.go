package httpserver

import "time"

// Config is the environment view of the server options.
//
// ShutdownTimeout bounds the whole stop sequence, the stop hooks included,
// so it should cover ROUTER_DRAIN_TIMEOUT when the router is closed from a hook.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"` // cross-store searches fan out before the first byte
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"35s"`
}

// options turns the non-zero fields into Options. The With* constructors
// panic on zero values, so each one is only called when its field is set.
func (cfg Config) options() []Option {
	var opts []Option
	add := func(set bool, opt func() Option) {
		if set {
			opts = append(opts, opt())
		}
	}
	add(cfg.Addr != "", func() Option { return WithAddr(cfg.Addr) })
	add(cfg.ReadTimeout > 0, func() Option { return WithReadTimeout(cfg.ReadTimeout) })
	add(cfg.WriteTimeout > 0, func() Option { return WithWriteTimeout(cfg.WriteTimeout) })
	add(cfg.IdleTimeout > 0, func() Option { return WithIdleTimeout(cfg.IdleTimeout) })
	add(cfg.ShutdownTimeout > 0, func() Option { return WithShutdownTimeout(cfg.ShutdownTimeout) })
	return opts
}

// NewFromConfig returns a Server built from cfg. Zero fields keep the server
// defaults, and opts are applied last so they override cfg.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	return New(append(cfg.options(), opts...)...)
}
