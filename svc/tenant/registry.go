package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Registry is the durable source of truth for stores and their owners.
type Registry interface {
	// Create persists r. ID, Status (provisioning) and timestamps are filled when zero.
	// Returns a *ConflictError matching ErrDuplicateTenantCode if the code is taken.
	Create(ctx context.Context, r *Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByCode(ctx context.Context, code string) (*Record, error)
	FindByStatus(ctx context.Context, status Status) ([]*Record, error)
	List(ctx context.Context) ([]*Record, error)
	// ExpiredSubscriptions lists active records whose subscription ended before now.
	ExpiredSubscriptions(ctx context.Context, now time.Time) ([]*Record, error)
	// Transition applies ev to the record's current status atomically.
	Transition(ctx context.Context, code string, ev Event) (*Record, error)
	// Delete removes the record. Deleting a missing record returns ErrTenantNotFound.
	Delete(ctx context.Context, code string) error

	// CreateOwner adds a directory entry for o.
	// Returns a *ConflictError matching ErrDuplicateOwnerCredential on collision.
	CreateOwner(ctx context.Context, o *Owner) error
	FindOwner(ctx context.Context, tenantID uuid.UUID) (*Owner, error)
	// DeleteOwners removes every directory entry of the tenant. Missing entries are not an error.
	DeleteOwners(ctx context.Context, tenantID uuid.UUID) error
	// OwnerConflict returns a *ConflictError if username, email or a non-empty phone is taken.
	OwnerConflict(ctx context.Context, username, email, phone string) error
}

// ActiveCodes lists the codes of active stores. Its signature matches fanout.Source.
func ActiveCodes(reg Registry) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		records, err := reg.FindByStatus(ctx, StatusActive)
		if err != nil {
			return nil, err
		}
		codes := make([]string, 0, len(records))
		for _, r := range records {
			codes = append(codes, r.Code)
		}
		return codes, nil
	}
}
