package pg

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// databaseNamePattern keeps tenant database names to plain identifiers.
var databaseNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// AdminConn is one administrative connection. *pgx.Conn implements it.
type AdminConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// AdminDialer opens an administrative connection from a parsed config.
type AdminDialer func(ctx context.Context, cfg *pgx.ConnConfig) (AdminConn, error)

// AdminOption configures an Admin.
type AdminOption func(*Admin)

// WithAdminDialer replaces pgx.ConnectConfig.
func WithAdminDialer(dial AdminDialer) AdminOption {
	return func(a *Admin) {
		if dial != nil {
			a.dial = dial
		}
	}
}

// Admin issues database-level DDL with the credentials of AdminConfig.
//
// Each call connects to the server that hosts the target database: the host
// and port come from the Coordinates, user, password and maintenance database
// from the admin connection string. CREATE/DROP DATABASE cannot run inside a
// transaction, so every call is a single autocommit statement on its own
// short-lived connection.
type Admin struct {
	base *pgx.ConnConfig
	dial AdminDialer
}

// NewAdmin parses the admin connection string.
func NewAdmin(cfg AdminConfig, opts ...AdminOption) (*Admin, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionString
	}
	base, err := pgx.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}

	a := &Admin{
		base: base,
		dial: func(ctx context.Context, cfg *pgx.ConnConfig) (AdminConn, error) {
			conn, err := pgx.ConnectConfig(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ValidateDatabaseName reports whether name can be used as a tenant database.
func ValidateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}
	return nil
}

// CreateDatabase creates an empty database c.Database on c's server,
// owned by c.User (empty means the admin role).
func (a *Admin) CreateDatabase(ctx context.Context, c Coordinates) error {
	if err := ValidateDatabaseName(c.Database); err != nil {
		return err
	}

	stmt := "CREATE DATABASE " + pgx.Identifier{c.Database}.Sanitize()
	if c.User != "" {
		stmt += " OWNER " + pgx.Identifier{c.User}.Sanitize()
	}

	return a.on(ctx, c, func(conn AdminConn) error {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			if IsDuplicateDatabaseError(err) {
				return errors.Join(ErrDatabaseExists, err)
			}
			return errors.Join(ErrFailedToCreateDatabase, err)
		}
		return nil
	})
}

// DropDatabase drops c.Database on c's server if it exists, terminating remaining sessions.
func (a *Admin) DropDatabase(ctx context.Context, c Coordinates) error {
	if err := ValidateDatabaseName(c.Database); err != nil {
		return err
	}

	stmt := "DROP DATABASE IF EXISTS " + pgx.Identifier{c.Database}.Sanitize() + " WITH (FORCE)"
	return a.on(ctx, c, func(conn AdminConn) error {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return errors.Join(ErrFailedToDropDatabase, err)
		}
		return nil
	})
}

// DatabaseExists reports whether c.Database exists on c's server.
func (a *Admin) DatabaseExists(ctx context.Context, c Coordinates) (bool, error) {
	var exists bool
	err := a.on(ctx, c, func(conn AdminConn) error {
		return conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, c.Database,
		).Scan(&exists)
	})
	return exists, err
}

func (a *Admin) on(ctx context.Context, c Coordinates, fn func(AdminConn) error) error {
	cfg := a.target(c)
	conn, err := a.dial(ctx, cfg)
	if err != nil {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
		return fmt.Errorf("%w: admin connection to %s: %w", ErrFailedToOpenDBConnection, addr, err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
	return fn(conn)
}

// target points the admin config at c's server. Fallback hosts of the admin
// connection string are dropped so DDL never lands on another server.
func (a *Admin) target(c Coordinates) *pgx.ConnConfig {
	cfg := a.base.Copy()
	if c.Host != "" {
		cfg.Host = c.Host
		cfg.Fallbacks = nil
		if cfg.TLSConfig != nil {
			cfg.TLSConfig = cfg.TLSConfig.Clone()
			cfg.TLSConfig.ServerName = c.Host
		}
	}
	if c.Port != 0 {
		cfg.Port = uint16(c.Port)
	}
	return cfg
}
