package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/pkg/saga"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// Step names of the provisioning saga.
const (
	StepReserveRecord  = "reserve-record"
	StepCreateDatabase = "create-database"
	StepRegisterRoute  = "register-route"
	StepMigrate        = "migrate"
	StepCreateOwner    = "create-owner"
	StepRegisterOwner  = "register-owner"
	StepActivate       = "activate"
)

// Provision creates a store end to end. On any failure every completed step
// is undone and an *Error is returned; conflicts detected before any work
// starts are returned as *tenant.ConflictError.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	log := s.log.With(logger.Tenant(req.Code))

	if err := s.checkConflicts(ctx, req); err != nil {
		log.InfoContext(ctx, "provisioning rejected", logger.Error(err))
		return nil, err
	}

	hash, err := tenant.HashPassword(req.Owner.Password, s.bcryptCost)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	rec := req.record()
	owner := &tenant.Owner{
		ID:           uuid.New(),
		TenantID:     rec.ID,
		Username:     req.Owner.Username,
		PasswordHash: hash,
		FullName:     req.Owner.FullName,
		Email:        req.Owner.Email,
		Phone:        req.Owner.Phone,
	}

	log.InfoContext(ctx, "provisioning started", slog.String("database", rec.DB.Redacted()))

	_, err = saga.Run(ctx, s.steps(rec, owner), saga.WithLogger(log))
	if err != nil {
		var serr *saga.Error
		if !errors.As(err, &serr) {
			return nil, errors.Join(ErrProvisioningFailed, err)
		}
		perr := &Error{Code: rec.Code, saga: serr}
		log.ErrorContext(ctx, "provisioning failed",
			logger.Step(perr.Step()),
			slog.Bool("rolled_back", perr.RolledBack()),
			logger.Error(perr.Cause()),
		)
		return nil, perr
	}

	log.InfoContext(ctx, "provisioning finished")

	return &Result{
		ID:         rec.ID,
		Code:       rec.Code,
		Name:       rec.Name,
		Active:     rec.Active(),
		OwnerName:  owner.FullName,
		OwnerEmail: owner.Email,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// Resume retries the compensations a failed Provision could not complete.
func (s *Service) Resume(ctx context.Context, perr *Error) error {
	if perr == nil {
		return nil
	}
	if err := saga.Resume(ctx, perr.Journal()); err != nil {
		return fmt.Errorf("resume rollback of %s: %w", perr.Code, err)
	}
	s.log.InfoContext(ctx, "provisioning rollback completed", logger.Tenant(perr.Code))
	return nil
}

// checkConflicts fails fast on a taken code or owner credential.
// The unique constraints still decide races; this only avoids needless work.
func (s *Service) checkConflicts(ctx context.Context, req Request) error {
	_, err := s.Registry.FindByCode(ctx, req.Code)
	switch {
	case err == nil:
		return &tenant.ConflictError{Field: tenant.FieldCode, Value: req.Code}
	case !errors.Is(err, tenant.ErrTenantNotFound):
		return fmt.Errorf("check tenant code: %w", err)
	}
	return s.Registry.OwnerConflict(ctx, req.Owner.Username, req.Owner.Email, req.Owner.Phone)
}

func (s *Service) steps(rec *tenant.Record, owner *tenant.Owner) []saga.Step {
	return []saga.Step{
		{
			Name: StepReserveRecord,
			Action: func(ctx context.Context) error {
				return s.Registry.Create(ctx, rec)
			},
			Compensate: func(ctx context.Context) error {
				return s.discardRecord(ctx, rec.Code)
			},
		},
		{
			Name: StepCreateDatabase,
			Action: func(ctx context.Context) error {
				return s.Admin.CreateDatabase(ctx, rec.DB)
			},
			Compensate: func(ctx context.Context) error {
				return s.Admin.DropDatabase(ctx, rec.DB)
			},
		},
		{
			Name: StepRegisterRoute,
			Action: func(ctx context.Context) error {
				return s.openRoute(ctx, rec)
			},
			Compensate: func(ctx context.Context) error {
				return s.closeRoute(ctx, rec.Code)
			},
		},
		{
			Name: StepMigrate,
			Action: func(ctx context.Context) error {
				versions, err := s.Migrator.Migrate(ctx, rec.DB)
				if err != nil {
					return err
				}
				s.log.DebugContext(ctx, "store schema migrated",
					logger.Tenant(rec.Code),
					slog.Any("versions", versions),
				)
				return nil
			},
		},
		{
			Name: StepCreateOwner,
			Action: func(ctx context.Context) error {
				return pkgtenant.Scope(ctx, rec.Code, func(ctx context.Context) error {
					return s.Accounts.CreateOwnerAccount(ctx, owner)
				})
			},
			Compensate: func(ctx context.Context) error {
				return pkgtenant.Scope(ctx, rec.Code, func(ctx context.Context) error {
					return s.Accounts.DeleteAccount(ctx, owner.ID)
				})
			},
		},
		{
			Name: StepRegisterOwner,
			Action: func(ctx context.Context) error {
				return s.Registry.CreateOwner(ctx, owner)
			},
			Compensate: func(ctx context.Context) error {
				return s.Registry.DeleteOwners(ctx, rec.ID)
			},
		},
		{
			Name: StepActivate,
			Action: func(ctx context.Context) error {
				activated, err := s.Registry.Transition(ctx, rec.Code, tenant.EventActivate)
				if err != nil {
					return err
				}
				*rec = *activated
				return nil
			},
		},
	}
}

// discardRecord moves a provisioning record to deleted and removes it.
// A record that is already gone counts as discarded.
func (s *Service) discardRecord(ctx context.Context, code string) error {
	_, err := s.Registry.Transition(ctx, code, tenant.EventRollback)
	if err != nil && !errors.Is(err, tenant.ErrTenantNotFound) && !errors.Is(err, tenant.ErrInvalidTransition) {
		return err
	}
	if err := s.Registry.Delete(ctx, code); err != nil && !errors.Is(err, tenant.ErrTenantNotFound) {
		return err
	}
	return nil
}

// openRoute opens a pool for rec and registers it, replacing a stale route
// left behind for the same code.
func (s *Service) openRoute(ctx context.Context, rec *tenant.Record) error {
	pool, err := s.Opener.Open(ctx, rec.DB)
	if err != nil {
		return errors.Join(dbrouter.ErrConnectionFailed, err)
	}

	err = s.Routes.AddRoute(rec.Code, pool)
	if errors.Is(err, dbrouter.ErrRouteExists) {
		s.log.WarnContext(ctx, "replacing stale tenant route", logger.Tenant(rec.Code))
		if err = s.closeRoute(ctx, rec.Code); err == nil {
			err = s.Routes.AddRoute(rec.Code, pool)
		}
	}
	if err != nil {
		pool.Close()
		return err
	}
	return nil
}

// closeRoute removes the route. A missing route is not an error, and a pool
// that is still draining is closed in the background by the router.
func (s *Service) closeRoute(ctx context.Context, code string) error {
	err := s.Routes.RemoveRoute(ctx, code)
	switch {
	case err == nil, errors.Is(err, dbrouter.ErrUnknownTenant):
		return nil
	case errors.Is(err, dbrouter.ErrDrainTimeout):
		s.log.WarnContext(ctx, "tenant pool still draining after route removal",
			logger.Tenant(code),
			logger.Error(err),
		)
		return nil
	default:
		return err
	}
}
