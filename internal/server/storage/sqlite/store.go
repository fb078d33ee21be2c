// Package sqlite implements the questlog repositories on a local SQLite
// file, for development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"questlog/internal/server/storage"
	"questlog/internal/server/storage/migrations"
)

const pragmas = "_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"

// Store is a storage.Store backed by one SQLite database.
type Store struct {
	db       *sql.DB
	users    *UserRepository
	progress *ProgressRepository
}

// Open opens the database at path. A file: URI is accepted as is; any
// other value is treated as a filesystem path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time. A single connection queues
	// writers in database/sql instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{
		db:       db,
		users:    NewUserRepository(db),
		progress: NewProgressRepository(db),
	}, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + pragmas
	}
	return filepath.Clean(path) + "?" + pragmas
}

func (s *Store) Users() storage.UserRepository {
	return s.users
}

func (s *Store) Progress() storage.ProgressRepository {
	return s.progress
}

var gooseUp = func(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := gooseUp(ctx, s.db, migrations.SQLite()); err != nil {
		return fmt.Errorf("sqlite migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", storage.ErrStorage, err)
}
