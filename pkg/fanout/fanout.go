package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

// Source lists the tenant codes to visit.
type Source func(ctx context.Context) ([]string, error)

// Codes returns a Source over a fixed list.
func Codes(codes ...string) Source {
	return func(context.Context) ([]string, error) {
		return codes, nil
	}
}

// Func is run once per tenant with ctx bound to code.
type Func[T any] func(ctx context.Context, code string) (T, error)

// Item is the result of one tenant.
type Item[T any] struct {
	Code  string
	Value T
}

// Result holds the successful tenants in source order.
type Result[T any] struct {
	Items []Item[T]
}

// Values returns the values without their codes.
func (r *Result[T]) Values() []T {
	out := make([]T, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Value)
	}
	return out
}

// Config holds fan-out settings.
type Config struct {
	Concurrency int `env:"FANOUT_CONCURRENCY" envDefault:"4"`
}

type options struct {
	logger *slog.Logger
}

// Option configures a fan-out run.
type Option func(*options)

// WithLogger logs every failed tenant.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ForEach visits every tenant from source one at a time.
// If ctx is canceled mid-scan the remaining tenants are recorded as failed with ctx's error.
func ForEach[T any](ctx context.Context, source Source, fn Func[T], opts ...Option) (*Result[T], error) {
	o := newOptions(opts)

	codes, err := list(ctx, source)
	if err != nil {
		return &Result[T]{}, err
	}

	values := make([]T, len(codes))
	errs := make([]error, len(codes))
	for i, code := range codes {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		values[i], errs[i] = visit(ctx, code, fn)
	}

	return collect(ctx, o, codes, values, errs)
}

// ForEachConcurrent visits tenants with at most limit running at once.
// Every goroutine gets its own bound context derived from ctx.
func ForEachConcurrent[T any](ctx context.Context, source Source, limit int, fn Func[T], opts ...Option) (*Result[T], error) {
	if limit <= 0 {
		return &Result[T]{}, ErrInvalidLimit
	}
	o := newOptions(opts)

	codes, err := list(ctx, source)
	if err != nil {
		return &Result[T]{}, err
	}

	values := make([]T, len(codes))
	errs := make([]error, len(codes))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, code := range codes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			values[i], errs[i] = visit(ctx, code, fn)
			return nil
		})
	}
	_ = g.Wait()

	return collect(ctx, o, codes, values, errs)
}

func list(ctx context.Context, source Source) ([]string, error) {
	codes, err := source(tenant.Clear(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListTenants, err)
	}
	return codes, nil
}

func visit[T any](ctx context.Context, code string, fn Func[T]) (T, error) {
	return tenant.ScopeValue(ctx, code, func(ctx context.Context) (T, error) {
		return fn(ctx, code)
	})
}

func collect[T any](ctx context.Context, o options, codes []string, values []T, errs []error) (*Result[T], error) {
	res := &Result[T]{Items: make([]Item[T], 0, len(codes))}
	var failures []Failure
	for i, code := range codes {
		if errs[i] != nil {
			failures = append(failures, Failure{Code: code, Err: errs[i]})
			o.logger.WarnContext(ctx, "tenant failed during fan-out",
				logger.Tenant(code),
				logger.Error(errs[i]),
			)
			continue
		}
		res.Items = append(res.Items, Item[T]{Code: code, Value: values[i]})
	}

	if len(failures) > 0 {
		return res, &PartialError[T]{Failures: failures, Result: res}
	}
	return res, nil
}
