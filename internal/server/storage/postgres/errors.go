package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"questlog/internal/server/storage"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// storageErr tags a driver error so callers can match storage.ErrStorage
// while keeping the original error in the chain.
func storageErr(err error) error {
	return fmt.Errorf("%w: %w", storage.ErrStorage, err)
}
