// Package postgres implements the questlog repositories on PostgreSQL
// using a pgx connection pool.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"questlog/internal/server/storage"
	"questlog/internal/server/storage/migrations"
)

// querier is the subset of pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it as well.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options configures the connection pool.
type Options struct {
	DSN      string
	User     string // applied when OverrideCredentials is set
	Password string
	MaxConns int

	OverrideCredentials bool
}

// Store is a storage.Store backed by a pgxpool.Pool.
type Store struct {
	pool     *pgxpool.Pool
	users    *UserRepository
	progress *ProgressRepository
}

// Open builds the pool. Connections are established lazily; call Ping to
// verify the server is reachable.
func Open(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if opts.OverrideCredentials {
		if opts.User != "" {
			cfg.ConnConfig.User = opts.User
		}
		if opts.Password != "" {
			cfg.ConnConfig.Password = opts.Password
		}
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	return NewStore(pool), nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:     pool,
		users:    NewUserRepository(pool),
		progress: NewProgressRepository(pool),
	}
}

func (s *Store) Users() storage.UserRepository {
	return s.users
}

func (s *Store) Progress() storage.ProgressRepository {
	return s.progress
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// gooseUp is a seam for testing migrations without a server.
var gooseUp = func(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Migrate applies the embedded migrations through a database/sql view of the pool.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := gooseUp(ctx, db, migrations.Postgres()); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
