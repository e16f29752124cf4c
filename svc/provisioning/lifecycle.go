package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/logger"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// Teardown step names reported by TeardownError.
const (
	TeardownRoute    = "remove-route"
	TeardownDatabase = "drop-database"
	TeardownOwners   = "delete-owners"
	TeardownRecord   = "delete-record"
)

// Activate makes a provisioning or deactivated store routable again.
func (s *Service) Activate(ctx context.Context, code string) (*tenant.Record, error) {
	rec, err := s.Registry.Transition(ctx, code, tenant.EventActivate)
	if err != nil {
		return nil, err
	}

	// the router also opens the route lazily, this just warms it
	if !s.Routes.HasRoute(code) {
		if err := s.openRoute(ctx, rec); err != nil {
			s.log.WarnContext(ctx, "failed to open route for activated tenant",
				logger.Tenant(code),
				logger.Error(err),
			)
		}
	}

	s.log.InfoContext(ctx, "tenant activated", logger.Tenant(code))
	return rec, nil
}

// Deactivate stops routing to a store. The record is updated before the route
// is removed. A lazy load that read the record earlier is discarded by the
// router and retried, and the retry is refused with dbrouter.ErrTenantInactive.
func (s *Service) Deactivate(ctx context.Context, code string) (*tenant.Record, error) {
	rec, err := s.Registry.Transition(ctx, code, tenant.EventDeactivate)
	if err != nil {
		return nil, err
	}
	err = s.closeRoute(ctx, code)
	s.announceEviction(ctx, code)
	if err != nil {
		return rec, fmt.Errorf("deactivate %s: %w", code, err)
	}

	s.log.InfoContext(ctx, "tenant deactivated", logger.Tenant(code))
	return rec, nil
}

type deleteOptions struct {
	force bool
}

// DeleteOption configures Delete.
type DeleteOption func(*deleteOptions)

// Force deletes the registry record even when earlier teardown steps failed.
// The failures are still reported.
func Force() DeleteOption {
	return func(o *deleteOptions) {
		o.force = true
	}
}

// Delete tears a store down: remove the route, drop the database, delete the
// owner directory entries, delete the record. Every step is attempted. The
// record is kept (as deleted) when an earlier step failed, unless Force is given,
// so the teardown can be retried. Failures are returned as *TeardownError.
func (s *Service) Delete(ctx context.Context, code string, opts ...DeleteOption) error {
	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec, err := s.Registry.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if rec.Status != tenant.StatusDeleted {
		if rec, err = s.Registry.Transition(ctx, code, tenant.TeardownEvent(rec.Status)); err != nil {
			return err
		}
	}

	log := s.log.With(logger.Tenant(code))
	terr := &TeardownError{Code: code}
	fail := func(step string, err error) {
		terr.Failures = append(terr.Failures, TeardownStepError{Step: step, Err: err})
		log.ErrorContext(ctx, "teardown step failed", logger.Step(step), logger.Error(err))
	}

	if err := s.closeRoute(ctx, code); err != nil {
		fail(TeardownRoute, err)
	}
	s.announceEviction(ctx, code)
	if err := s.Admin.DropDatabase(ctx, rec.DB); err != nil {
		fail(TeardownDatabase, err)
	}
	if err := s.Registry.DeleteOwners(ctx, rec.ID); err != nil {
		fail(TeardownOwners, err)
	}

	if len(terr.Failures) == 0 || o.force {
		if err := s.Registry.Delete(ctx, code); err != nil && !errors.Is(err, tenant.ErrTenantNotFound) {
			fail(TeardownRecord, err)
		} else {
			terr.RecordDeleted = true
		}
	}

	if len(terr.Failures) > 0 {
		return terr
	}
	log.InfoContext(ctx, "tenant deleted")
	return nil
}

// EvictRoute drops the local route for code. It handles evictions announced by
// other instances, so it only logs failures.
func (s *Service) EvictRoute(ctx context.Context, code string) {
	if !pkgtenant.IsValidCode(code) {
		s.log.WarnContext(ctx, "ignoring route eviction for invalid store code", slog.String("code", code))
		return
	}
	if err := s.closeRoute(ctx, code); err != nil {
		s.log.WarnContext(ctx, "failed to evict tenant route", logger.Tenant(code), logger.Error(err))
		return
	}
	s.log.DebugContext(ctx, "tenant route evicted", logger.Tenant(code))
}

func (s *Service) announceEviction(ctx context.Context, code string) {
	if s.evictions == nil {
		return
	}
	if err := s.evictions.Publish(ctx, code); err != nil {
		// the maintenance sweep reconciles routes the other instances keep
		s.log.WarnContext(ctx, "failed to announce route eviction", logger.Tenant(code), logger.Error(err))
	}
}

// Bootstrap registers a route for every active store. Call it before serving traffic.
// Stores that fail to open are reported in a *fanout.PartialError; the others stay routed.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	res, err := fanout.ForEachConcurrent(ctx, tenant.ActiveCodes(s.Registry), s.parallel,
		func(ctx context.Context, code string) (struct{}, error) {
			if s.Routes.HasRoute(code) {
				return struct{}{}, nil
			}
			rec, err := s.Registry.FindByCode(ctx, code)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, s.openRoute(ctx, rec)
		},
		fanout.WithLogger(s.log),
	)

	s.log.InfoContext(ctx, "tenant routes bootstrapped", slog.Int("routes", len(res.Items)))
	return len(res.Items), err
}

// MigrateAll applies pending store migrations to every active store database.
// It runs sequentially so one slow database does not hold many connections.
func (s *Service) MigrateAll(ctx context.Context) (*fanout.Result[[]int64], error) {
	return fanout.ForEach(ctx, tenant.ActiveCodes(s.Registry),
		func(ctx context.Context, code string) ([]int64, error) {
			rec, err := s.Registry.FindByCode(ctx, code)
			if err != nil {
				return nil, err
			}
			return s.Migrator.Migrate(ctx, rec.DB)
		},
		fanout.WithLogger(s.log),
	)
}
