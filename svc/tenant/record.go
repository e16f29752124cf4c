package tenant

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

// Quotas bound what a store may hold. Zero means unlimited.
type Quotas struct {
	MaxUsers int `json:"max_users"`
	MaxItems int `json:"max_items"`
}

// Record describes one store. Code is the routing key and never changes after creation.
type Record struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	Code              string         `json:"code"`
	DB                pg.Coordinates `json:"db"`
	Status            Status         `json:"status"`
	Quotas            Quotas         `json:"quotas"`
	SubscriptionStart *time.Time     `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time     `json:"subscription_end,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Active reports whether the store may be routed to.
func (r *Record) Active() bool {
	return r != nil && r.Status == StatusActive
}

// SubscriptionExpired reports whether the subscription window ended before now.
func (r *Record) SubscriptionExpired(now time.Time) bool {
	return r.SubscriptionEnd != nil && r.SubscriptionEnd.Before(now)
}

// Validate checks the fields every Registry implementation relies on.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if !tenant.IsValidCode(r.Code) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRecord, tenant.ErrInvalidIdentifier, r.Code)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidStatus)
	}
	return nil
}

// prepare fills the fields a Registry assigns on Create.
func (r *Record) prepare(now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusProvisioning
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

func (r *Record) clone() *Record {
	c := *r
	if r.SubscriptionStart != nil {
		t := *r.SubscriptionStart
		c.SubscriptionStart = &t
	}
	if r.SubscriptionEnd != nil {
		t := *r.SubscriptionEnd
		c.SubscriptionEnd = &t
	}
	return &c
}

// Owner is the privileged account created together with a store.
// The master database keeps a directory entry (no credential) used for
// uniqueness checks; the full account lives in the store's own database.
type Owner struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (o *Owner) prepare(now time.Time) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
}
