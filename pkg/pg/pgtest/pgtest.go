//go:build integration

// Package pgtest gives integration tests a real PostgreSQL server.
//
// The server is started once per test binary with testcontainers-go, or taken
// from STOREFLEET_TEST_PG_URL (a superuser URL to the "postgres" database) when
// that is set, so CI can point the tests at a service container:
//
//	func TestMain(m *testing.M) { pgtest.Main(m) }
//
//	func TestSomething(t *testing.T) {
//		db := pgtest.Start(t).NewDatabase(t)
//		pool := pgtest.Connect(t, db)
//		...
//	}
//
// Run with: go test -tags integration ./...
package pgtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/storefleet/pkg/pg"
)

// EnvURL overrides the container with an existing server.
const EnvURL = "STOREFLEET_TEST_PG_URL"

const (
	image    = "postgres:16-alpine"
	user     = "postgres"
	password = "storefleet"
)

// Server is a PostgreSQL server the tests may create databases on.
type Server struct {
	Host     string
	Port     int
	User     string
	Password string
}

var (
	once      sync.Once
	shared    *Server
	startErr  error
	container testcontainers.Container
)

// Start returns the shared server, starting the container on first use.
func Start(t testing.TB) *Server {
	t.Helper()

	once.Do(func() {
		shared, startErr = start(context.Background())
	})
	require.NoError(t, startErr, "start postgres")
	return shared
}

// Main runs the tests and stops the container afterwards.
func Main(m *testing.M) {
	code := m.Run()
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = container.Terminate(ctx)
		cancel()
	}
	os.Exit(code)
}

func start(ctx context.Context) (*Server, error) {
	if raw := os.Getenv(EnvURL); raw != "" {
		return fromURL(raw)
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
			},
			// the entrypoint restarts the server once after initdb
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}
	container = c

	host, err := c.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, err
	}
	return &Server{Host: host, Port: port.Int(), User: user, Password: password}, nil
}

func fromURL(raw string) (*Server, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvURL, err)
	}
	port := 5432
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("%s: port: %w", EnvURL, err)
		}
	}
	pass, _ := u.User.Password()
	return &Server{Host: u.Hostname(), Port: port, User: u.User.Username(), Password: pass}, nil
}

// AdminURL is the superuser URL to the maintenance database.
func (s *Server) AdminURL() string {
	return s.Coordinates("postgres").ConnString()
}

// Coordinates locates database on s with the superuser credentials.
func (s *Server) Coordinates(database string) pg.Coordinates {
	return pg.Coordinates{
		Host:     s.Host,
		Port:     s.Port,
		Database: database,
		User:     s.User,
		Password: s.Password,
	}
}

// Admin returns a pg.Admin using the superuser credentials.
func (s *Server) Admin(t testing.TB) *pg.Admin {
	t.Helper()

	admin, err := pg.NewAdmin(pg.AdminConfig{ConnectionString: s.AdminURL()})
	require.NoError(t, err)
	return admin
}

// NewDatabase creates an empty database with a random name and drops it when the test ends.
func (s *Server) NewDatabase(t testing.TB) pg.Coordinates {
	t.Helper()

	c := s.Coordinates(RandomName(t))
	admin := s.Admin(t)
	require.NoError(t, admin.CreateDatabase(context.Background(), c))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = admin.DropDatabase(ctx, c)
	})
	return c
}

// RandomName returns a valid database name that no other test uses.
func RandomName(t testing.TB) string {
	t.Helper()

	b := make([]byte, 6)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return "it_" + hex.EncodeToString(b)
}

// Config returns a pool config for c with small limits and no retries.
func Config(c pg.Coordinates) pg.Config {
	return pg.Config{
		ConnectionString: c.ConnString(),
		MaxOpenConns:     4,
		MaxIdleConns:     0,
		RetryAttempts:    1,
		RetryInterval:    100 * time.Millisecond,
		MigrationsTable:  "schema_migrations",
	}
}

// Connect opens a pool to c and closes it when the test ends.
func Connect(t testing.TB, c pg.Coordinates) *pgxpool.Pool {
	t.Helper()

	pool, err := pg.Connect(context.Background(), Config(c))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}
