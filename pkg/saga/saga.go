package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

// Step is one forward action with the compensating action that undoes it.
// Compensate may be nil for steps with no durable effect.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	log *slog.Logger
}

// WithLogger logs every step and compensation outcome.
func WithLogger(log *slog.Logger) Option {
	return func(c *runConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// Run executes steps in order. When a step fails, panics, or ctx is done
// before the next step starts, every completed step is compensated in
// reverse order and an *Error is returned.
//
// Compensations run on a context detached from ctx's cancellation: a caller
// timing out is exactly the case rollback has to survive. Each compensation
// is attempted even if an earlier one failed; the journal records which did.
func Run(ctx context.Context, steps []Step, opts ...Option) (*Journal, error) {
	cfg := &runConfig{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}

	j := newJournal(steps, cfg.log)

	for i, step := range steps {
		var err error
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("aborted before %s: %w", step.Name, ctxErr)
		} else {
			cfg.log.DebugContext(ctx, "saga step started", logger.Step(step.Name))
			err = invoke(ctx, step.Action)
		}

		if err != nil {
			j.mark(i, Failed, err)
			cfg.log.ErrorContext(ctx, "saga step failed",
				logger.Step(step.Name),
				logger.Error(err),
			)
			j.compensate(context.WithoutCancel(ctx))
			return j, &Error{Step: step.Name, Err: err, Journal: j}
		}

		j.mark(i, Done, nil)
	}

	return j, nil
}

// Resume retries compensations that are still outstanding in j, e.g. after a
// previous rollback failed part-way. It returns nil once everything is undone.
func Resume(ctx context.Context, j *Journal) error {
	if j == nil {
		return nil
	}
	j.compensate(ctx)
	return j.CompensationErrors()
}

// invoke runs fn, converting a panic into an error so rollback still happens.
func invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn(ctx)
}
