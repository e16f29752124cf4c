package pg

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/pressly/goose/v3/lock"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

// Migrate applies every pending migration in fsys to the database behind pool
// and returns the versions applied by this call.
//
// Version state lives in cfg.MigrationsTable inside the target database, so
// each tenant database tracks its own schema. Re-running against an
// up-to-date database applies nothing. A Postgres session lock serializes
// concurrent runs against the same database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, cfg Config, log *slog.Logger) ([]int64, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	table := cfg.MigrationsTable
	if table == "" {
		table = "schema_migrations"
	}

	// goose needs database/sql; this shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration handle", logger.Error(err))
		}
	}()

	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyMigrations, err)
	}

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyMigrations, err)
	}

	provider, err := goose.NewProvider("", db, fsys,
		goose.WithStore(store),
		goose.WithSessionLocker(locker),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyMigrations, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToApplyMigrations, err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
		log.InfoContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return applied, nil
}
