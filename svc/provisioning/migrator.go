package provisioning

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/dmitrymomot/storefleet/pkg/pg"
)

// PgMigrator migrates a store database through a short-lived single-connection pool,
// so schema work never competes with routed traffic for connections.
type PgMigrator struct {
	cfg  pg.Config
	fsys fs.FS
	log  *slog.Logger
}

// NewPgMigrator applies the migrations in fsys. cfg supplies retry settings and
// the migrations table; its connection string is replaced per database.
func NewPgMigrator(cfg pg.Config, fsys fs.FS, log *slog.Logger) *PgMigrator {
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 0
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PgMigrator{cfg: cfg, fsys: fsys, log: log}
}

func (m *PgMigrator) Migrate(ctx context.Context, c pg.Coordinates) ([]int64, error) {
	pool, err := pg.Connect(ctx, m.cfg.WithConnectionString(c.ConnString()))
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return pg.Migrate(ctx, pool, m.fsys, m.cfg, m.log.With(slog.String("database", c.Database)))
}
