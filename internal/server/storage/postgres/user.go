package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"questlog/internal/server/storage"
)

// UserRepository implements storage.UserRepository using PostgreSQL.
type UserRepository struct {
	db querier
}

func NewUserRepository(db querier) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by exact email match.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, COALESCE(username, ''), email, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email)

	var u storage.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Create inserts a user and returns the generated id.
func (r *UserRepository) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, now())
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

// List returns all users ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]storage.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, COALESCE(username, ''), email, password_hash, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(storageErr(err))
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		var u storage.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, oops.Code("USER_LIST_FAILED").
				With("operation", "scan user").
				Wrap(storageErr(err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "iterate users").
			Wrap(storageErr(err))
	}
	return users, nil
}
