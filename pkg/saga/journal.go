package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

// Outcome is the state of one step in a journal.
type Outcome string

const (
	Pending            Outcome = "pending"
	Done               Outcome = "done"
	Failed             Outcome = "failed"
	Compensated        Outcome = "compensated"
	CompensationFailed Outcome = "compensation_failed"
)

// Entry is the journal record of one step.
type Entry struct {
	Step    string
	Outcome Outcome
	Err     error
}

// Journal records what every step of a run did and what rollback undid.
// It is safe for concurrent reads while Resume runs.
type Journal struct {
	mu      sync.Mutex
	steps   []Step
	entries []Entry
	log     *slog.Logger
}

func newJournal(steps []Step, log *slog.Logger) *Journal {
	entries := make([]Entry, len(steps))
	for i, s := range steps {
		entries[i] = Entry{Step: s.Name, Outcome: Pending}
	}
	return &Journal{steps: steps, entries: entries, log: log}
}

func (j *Journal) mark(i int, o Outcome, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[i].Outcome = o
	j.entries[i].Err = err
}

// Entries returns a copy of the journal entries in step order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Outcome returns the outcome recorded for the named step.
func (j *Journal) Outcome(step string) Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.Step == step {
			return e.Outcome
		}
	}
	return ""
}

// RolledBack reports whether no step is left with an effect in place.
func (j *Journal) RolledBack() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.Outcome == Done || e.Outcome == CompensationFailed {
			return false
		}
	}
	return true
}

// CompensationErrors joins the errors of compensations that did not succeed.
func (j *Journal) CompensationErrors() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	for _, e := range j.entries {
		if e.Outcome == CompensationFailed {
			errs = append(errs, fmt.Errorf("%s: %w", e.Step, e.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrCompensationFailed}, errs...)...)
}

// compensate undoes done steps in reverse order. It only touches steps that
// are Done or CompensationFailed, so running it twice is harmless.
func (j *Journal) compensate(ctx context.Context) {
	for i := len(j.steps) - 1; i >= 0; i-- {
		j.mu.Lock()
		outcome := j.entries[i].Outcome
		j.mu.Unlock()

		if outcome != Done && outcome != CompensationFailed {
			continue
		}

		step := j.steps[i]
		if step.Compensate == nil {
			j.mark(i, Compensated, nil)
			continue
		}

		if err := invoke(ctx, step.Compensate); err != nil {
			j.mark(i, CompensationFailed, err)
			j.log.ErrorContext(ctx, "saga compensation failed",
				logger.Step(step.Name),
				logger.Error(err),
			)
			continue
		}

		j.mark(i, Compensated, nil)
		j.log.InfoContext(ctx, "saga step compensated", logger.Step(step.Name))
	}
}
