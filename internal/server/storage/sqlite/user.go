package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/oops"

	"questlog/internal/server/storage"
)

// UserRepository implements storage.UserRepository using SQLite.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	var u storage.User
	err := r.db.QueryRowContext(ctx, `
SELECT id, COALESCE(username, ''), email, password_hash, created_at
FROM users
WHERE email = ?
`, email).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(storage.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user by email").
			With("email", email).
			Wrap(storageErr(err))
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO users (username, email, password_hash)
VALUES (?, ?, ?)
RETURNING id
`, username, email, passwordHash).Scan(&id)

	if isUniqueViolation(err) {
		return 0, oops.Code("USER_DUPLICATE").
			With("email", email).
			Wrap(fmt.Errorf("%w: %w", storage.ErrDuplicate, err))
	}
	if err != nil {
		return 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", email).
			Wrap(storageErr(err))
	}
	return id, nil
}

func (r *UserRepository) List(ctx context.Context) ([]storage.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, COALESCE(username, ''), email, password_hash, created_at
FROM users
ORDER BY id
`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(storageErr(err))
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		var u storage.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, oops.Code("USER_LIST_FAILED").Wrap(storageErr(err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(storageErr(err))
	}
	return users, nil
}
