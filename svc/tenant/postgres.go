package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/secrets"
)

// Unique constraints of the master schema, mapped to conflict fields.
var conflictFields = map[string]string{
	"tenants_code_key":           FieldCode,
	"tenant_owners_username_key": FieldUsername,
	"tenant_owners_email_key":    FieldEmail,
	"tenant_owners_phone_key":    FieldPhone,
}

const recordColumns = `id, name, code, db_host, db_port, db_name, db_user, db_password, db_sslmode,
	status, max_users, max_items, subscription_start, subscription_end, created_at, updated_at`

// Sealer encrypts database passwords per store code. *secrets.Sealer implements it.
type Sealer interface {
	Seal(scope, plaintext string) (string, error)
	Open(scope, sealed string) (string, error)
}

// PgOption configures a PgRegistry.
type PgOption func(*PgRegistry)

// WithSealer stores database passwords sealed under the store code.
// Rows written without a sealer are still read as plaintext.
func WithSealer(s Sealer) PgOption {
	return func(r *PgRegistry) {
		r.sealer = s
	}
}

// PgRegistry stores records in the master database.
// db must reach the master database directly, never through a tenant route.
type PgRegistry struct {
	db     dbrouter.Querier
	sealer Sealer
	now    func() time.Time
}

// NewPgRegistry returns a registry over the master database.
func NewPgRegistry(db dbrouter.Querier, opts ...PgOption) *PgRegistry {
	r := &PgRegistry{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (s *PgRegistry) Create(ctx context.Context, r *Record) error {
	r.prepare(s.now().UTC())
	if err := r.Validate(); err != nil {
		return err
	}

	password, err := s.seal(r.Code, r.DB.Password)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO tenants (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.Name, r.Code, r.DB.Host, r.DB.Port, r.DB.Database, r.DB.User, password, r.DB.SSLMode,
		r.Status, r.Quotas.MaxUsers, r.Quotas.MaxItems, r.SubscriptionStart, r.SubscriptionEnd, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, r.Code, "", "", "")
	}
	return nil
}

func (s *PgRegistry) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM tenants WHERE id = $1`, id)
}

func (s *PgRegistry) FindByCode(ctx context.Context, code string) (*Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM tenants WHERE code = $1`, code)
}

func (s *PgRegistry) FindByStatus(ctx context.Context, status Status) ([]*Record, error) {
	return s.findMany(ctx, `SELECT `+recordColumns+` FROM tenants WHERE status = $1 ORDER BY code`, status)
}

func (s *PgRegistry) List(ctx context.Context) ([]*Record, error) {
	return s.findMany(ctx, `SELECT `+recordColumns+` FROM tenants ORDER BY code`)
}

func (s *PgRegistry) ExpiredSubscriptions(ctx context.Context, now time.Time) ([]*Record, error) {
	return s.findMany(ctx,
		`SELECT `+recordColumns+` FROM tenants
		 WHERE status = $1 AND subscription_end IS NOT NULL AND subscription_end < $2
		 ORDER BY code`,
		StatusActive, now,
	)
}

// Transition locks the row, checks the lifecycle table and stores the new status in one transaction.
// updated_at always moves forward, even when instance clocks disagree.
func (s *PgRegistry) Transition(ctx context.Context, code string, ev Event) (*Record, error) {
	var out *Record
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var current Status
		err := tx.QueryRow(ctx, `SELECT status FROM tenants WHERE code = $1 FOR UPDATE`, code).Scan(&current)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return ErrTenantNotFound
			}
			return err
		}

		next, err := current.Next(ev)
		if err != nil {
			return err
		}

		out, err = scanRecord(tx.QueryRow(ctx,
			`UPDATE tenants SET status = $2, updated_at = GREATEST($3, updated_at + interval '1 microsecond')
			 WHERE code = $1 RETURNING `+recordColumns,
			code, next, s.now().UTC(),
		))
		if err != nil {
			return err
		}
		return s.open(out)
	})
	if err != nil {
		return nil, fmt.Errorf("transition tenant %s on %s: %w", code, ev, err)
	}
	return out, nil
}

func (s *PgRegistry) Delete(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PgRegistry) CreateOwner(ctx context.Context, o *Owner) error {
	o.prepare(s.now().UTC())

	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_owners (id, tenant_id, username, full_name, email, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.TenantID, o.Username, o.FullName, o.Email, o.Phone, o.CreatedAt,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return fmt.Errorf("owner of %s: %w", o.TenantID, ErrTenantNotFound)
		}
		return conflictOr(err, "", o.Username, o.Email, o.Phone)
	}
	return nil
}

func (s *PgRegistry) FindOwner(ctx context.Context, tenantID uuid.UUID) (*Owner, error) {
	o := &Owner{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, username, full_name, email, phone, created_at
		 FROM tenant_owners WHERE tenant_id = $1 ORDER BY created_at LIMIT 1`,
		tenantID,
	).Scan(&o.ID, &o.TenantID, &o.Username, &o.FullName, &o.Email, &o.Phone, &o.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *PgRegistry) DeleteOwners(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tenant_owners WHERE tenant_id = $1`, tenantID)
	return err
}

func (s *PgRegistry) OwnerConflict(ctx context.Context, username, email, phone string) error {
	var field string
	err := s.db.QueryRow(ctx,
		`SELECT CASE
			WHEN lower(username) = lower($1) THEN 'username'
			WHEN lower(email) = lower($2) THEN 'email'
			ELSE 'phone'
		 END
		 FROM tenant_owners
		 WHERE lower(username) = lower($1) OR lower(email) = lower($2) OR ($3 <> '' AND phone = $3)
		 LIMIT 1`,
		username, email, phone,
	).Scan(&field)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return newConflict(field, "", username, email, phone)
}

func (s *PgRegistry) findOne(ctx context.Context, sql string, args ...any) (*Record, error) {
	r, err := scanRecord(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if err := s.open(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PgRegistry) findMany(ctx context.Context, sql string, args ...any) ([]*Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if err := s.open(r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgRegistry) seal(code, password string) (string, error) {
	if s.sealer == nil || password == "" {
		return password, nil
	}
	sealed, err := s.sealer.Seal(code, password)
	if err != nil {
		return "", fmt.Errorf("seal database password of %s: %w", code, err)
	}
	return sealed, nil
}

func (s *PgRegistry) open(r *Record) error {
	if s.sealer == nil || !secrets.IsSealed(r.DB.Password) {
		return nil
	}
	plain, err := s.sealer.Open(r.Code, r.DB.Password)
	if err != nil {
		return fmt.Errorf("open database password of %s: %w", r.Code, err)
	}
	r.DB.Password = plain
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	r := &Record{}
	err := row.Scan(
		&r.ID, &r.Name, &r.Code,
		&r.DB.Host, &r.DB.Port, &r.DB.Database, &r.DB.User, &r.DB.Password, &r.DB.SSLMode,
		&r.Status, &r.Quotas.MaxUsers, &r.Quotas.MaxItems,
		&r.SubscriptionStart, &r.SubscriptionEnd, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// conflictOr turns a unique violation into a *ConflictError naming the field.
func conflictOr(err error, code, username, email, phone string) error {
	if !pg.IsDuplicateKeyError(err) {
		return err
	}
	field, ok := conflictFields[pg.ConstraintName(err)]
	if !ok {
		return errors.Join(ErrDuplicateOwnerCredential, err)
	}
	return newConflict(field, code, username, email, phone)
}

func newConflict(field, code, username, email, phone string) *ConflictError {
	value := map[string]string{
		FieldCode:     code,
		FieldUsername: username,
		FieldEmail:    email,
		FieldPhone:    phone,
	}[field]
	return &ConflictError{Field: field, Value: value}
}
