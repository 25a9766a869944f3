package postgres

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Pool is the subset of *pgxpool.Pool used here; pgxmock satisfies it too.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type DB struct {
	Pool Pool
}

func New(pool Pool) *DB { return &DB{Pool: pool} }

// Connect opens a pool and verifies one connection can be acquired.
func Connect(ctx context.Context, dsn string, maxConns int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping")
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ready(ctx context.Context) error {
	var one int
	return errors.Wrap(db.Pool.QueryRow(ctx, "select 1").Scan(&one), "ready")
}

// RunMigration executes a single SQL file.
func (db *DB) RunMigration(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open migration")
	}
	defer f.Close()
	sqlBytes, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "read migration")
	}
	_, err = db.Pool.Exec(ctx, string(sqlBytes))
	if err != nil {
		return errors.Wrap(err, "exec migration")
	}
	return nil
}
