package pg

import "time"

// Config describes one pool against one physical database.
// The master store reads it from the environment; per-tenant pools copy the
// limits and swap in the tenant's connection string.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`                   // ConnectionString is the connection string to the master database.
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the maximum number of open connections to the database.
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the minimum number of idle connections kept open.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is the maximum amount of time a connection may be idle to be reused.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is the maximum amount of time a connection may be reused.

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts is the number of connection attempts.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s"` // RetryInterval is the base interval between attempts.

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"` // MigrationsTable holds the applied versions inside each database.
}

// AdminConfig holds the credentials used to create and drop tenant databases.
// Its host and port are only a default: DDL for a store runs on the store's own server.
type AdminConfig struct {
	ConnectionString string `env:"PG_ADMIN_CONN_URL,required"` // ConnectionString must point at a maintenance database (usually "postgres").
}

// WithConnectionString returns a copy of cfg pointed at another database.
func (cfg Config) WithConnectionString(conn string) Config {
	cfg.ConnectionString = conn
	return cfg
}
