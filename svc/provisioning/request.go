package provisioning

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// Request describes a new store.
type Request struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Code              string          `json:"code" validate:"required,tenantcode"`
	DB                DatabaseRequest `json:"db"`
	Owner             OwnerRequest    `json:"owner"`
	Quotas            QuotasRequest   `json:"quotas"`
	SubscriptionStart *time.Time      `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time      `json:"subscription_end,omitempty"`
}

// DatabaseRequest locates the database to create. User must already exist as a role
// and becomes the owner of the new database.
type DatabaseRequest struct {
	Host     string `json:"host" validate:"required,max=253"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Name     string `json:"name" validate:"required,dbname"`
	User     string `json:"user" validate:"required,max=63"`
	Password string `json:"password" validate:"max=256"`
	SSLMode  string `json:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// OwnerRequest describes the store's owner account.
type OwnerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

// QuotasRequest bounds the store. Zero means unlimited.
type QuotasRequest struct {
	MaxUsers int `json:"max_users" validate:"min=0"`
	MaxItems int `json:"max_items" validate:"min=0"`
}

func (r *Request) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Code = strings.TrimSpace(r.Code)
	r.DB.Host = strings.TrimSpace(r.DB.Host)
	r.DB.Name = strings.TrimSpace(r.DB.Name)
	r.DB.User = strings.TrimSpace(r.DB.User)
	r.Owner.Username = strings.TrimSpace(r.Owner.Username)
	r.Owner.FullName = strings.TrimSpace(r.Owner.FullName)
	r.Owner.Email = strings.ToLower(strings.TrimSpace(r.Owner.Email))
	r.Owner.Phone = strings.TrimSpace(r.Owner.Phone)
}

func (r *Request) record() *tenant.Record {
	return &tenant.Record{
		ID:   uuid.New(),
		Name: r.Name,
		Code: r.Code,
		DB: pg.Coordinates{
			Host:     r.DB.Host,
			Port:     r.DB.Port,
			Database: r.DB.Name,
			User:     r.DB.User,
			Password: r.DB.Password,
			SSLMode:  r.DB.SSLMode,
		},
		Status:            tenant.StatusProvisioning,
		Quotas:            tenant.Quotas{MaxUsers: r.Quotas.MaxUsers, MaxItems: r.Quotas.MaxItems},
		SubscriptionStart: r.SubscriptionStart,
		SubscriptionEnd:   r.SubscriptionEnd,
	}
}

// Result is returned by a successful Provision.
type Result struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	OwnerName  string    `json:"owner_name"`
	OwnerEmail string    `json:"owner_email"`
	CreatedAt  time.Time `json:"created_at"`
}
