// Package pg provides the PostgreSQL plumbing shared by the master store and
// every tenant database: pool construction, per-database migrations,
// database-level DDL and error classification, all on top of pgx/v5.
//
// # Architecture
//
//   - Config: pool limits and retry policy, populated from environment
//     variables via github.com/caarlos0/env. Per-tenant pools reuse the same
//     limits with a different connection string (Config.WithConnectionString).
//
//   - Coordinates: host, port, database name and credentials of one physical
//     database, rendered as a postgres URL.
//
//   - Connect: opens a *pgxpool.Pool and pings it, retrying with linear backoff.
//
//   - Migrate: applies an embedded set of goose migrations to exactly one
//     database. Version state is stored in that database, so re-running is a
//     no-op and tenants migrate independently.
//
//   - Admin: CREATE DATABASE / DROP DATABASE through administrative credentials.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	tenantFS, _ := fs.Sub(db.Migrations, "tenant")
//	if _, err := pg.Migrate(ctx, pool, tenantFS, cfg, log); err != nil {
//		return err
//	}
//
// # Error Handling
//
// IsDuplicateKeyError, IsDuplicateDatabaseError and friends unwrap
// *pgconn.PgError and compare SQLSTATE codes.
package pg
