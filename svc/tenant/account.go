package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/pg"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrInvalidPassword = errors.New("invalid password")
)

// Account roles.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// Account is a login stored in a store's own database.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashPassword hashes a plain-text password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password with the account's hash.
func (a *Account) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

const accountColumns = `id, username, password_hash, full_name, email, phone, role, active, created_at`

// AccountStore reads and writes the accounts table of whichever store is bound
// to the context. db is normally a *dbrouter.Router.
type AccountStore struct {
	db dbrouter.Querier
}

// NewAccountStore returns a store over db.
func NewAccountStore(db dbrouter.Querier) *AccountStore {
	return &AccountStore{db: db}
}

// CreateOwnerAccount inserts o as the store's owner account.
func (s *AccountStore) CreateOwnerAccount(ctx context.Context, o *Owner) error {
	o.prepare(time.Now().UTC())
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)`,
		o.ID, o.Username, o.PasswordHash, o.FullName, o.Email, o.Phone, RoleOwner, o.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(ErrAccountExists, err)
		}
		return err
	}
	return nil
}

// DeleteAccount removes an account. Missing accounts are not an error.
func (s *AccountStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

// FindByUsername returns the account with the given username, case-insensitively.
func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListAccounts returns up to limit accounts ordered by creation time.
func (s *AccountStore) ListAccounts(ctx context.Context, limit, offset int) ([]*Account, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, username LIMIT $1 OFFSET $2`,
		limit, max(offset, 0),
	)
}

// SearchAccounts matches q against username, full name and email.
func (s *AccountStore) SearchAccounts(ctx context.Context, q string, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"
	return s.query(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE username ILIKE $1 OR full_name ILIKE $1 OR email ILIKE $1
		 ORDER BY username LIMIT $2`,
		pattern, limit,
	)
}

// CountAccounts returns the number of accounts, used against Quotas.MaxUsers.
func (s *AccountStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n)
	return n, err
}

func (s *AccountStore) query(ctx context.Context, sql string, args ...any) ([]*Account, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Email, &a.Phone, &a.Role, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
