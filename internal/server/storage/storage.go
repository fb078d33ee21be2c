// Package storage defines the questlog data model and the repository
// contracts implemented by the postgres and sqlite backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
	// ErrStorage marks any other failure of the store or its connection pool.
	ErrStorage = errors.New("storage error")
)

// NullData returns the JSON document stored when a progress report carries
// no data. Each call returns a fresh slice.
func NullData() json.RawMessage {
	return json.RawMessage("null")
}

// User represents a row in the users table
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// QuestProgress represents a row in the quest_progress table
type QuestProgress struct {
	ID        int64
	Email     string
	QuestID   string
	Progress  float64
	Data      json.RawMessage
	UpdatedAt time.Time
}

// UserRepository owns all SQL against the users table.
type UserRepository interface {
	// FindByEmail returns ErrNotFound when no user has that email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create returns an error matching ErrDuplicate when the email is taken.
	Create(ctx context.Context, username, email, passwordHash string) (int64, error)
	List(ctx context.Context) ([]User, error)
}

// ProgressRepository owns all SQL against the quest_progress table.
type ProgressRepository interface {
	// Upsert inserts or replaces the row for (email, questID) in a single
	// statement and returns its id. data must be a valid JSON document.
	Upsert(ctx context.Context, email, questID string, progress float64, data json.RawMessage) (int64, error)
	ListByEmail(ctx context.Context, email string) ([]QuestProgress, error)
}

// Store vends repositories bound to one connection pool.
type Store interface {
	Users() UserRepository
	Progress() ProgressRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
