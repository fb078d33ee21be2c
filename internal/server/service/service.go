// Package service holds the questlog business rules between the HTTP
// handlers and the storage repositories.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"questlog/internal/server/storage"
)

const DefaultQueryTimeout = 5 * time.Second

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidData is returned when a progress payload is not valid JSON.
	ErrInvalidData = errors.New("data must be valid JSON")
)

// Service coordinates user accounts and quest progress
type Service struct {
	users        storage.UserRepository
	progress     storage.ProgressRepository
	hasher       PasswordHasher
	logger       *slog.Logger
	queryTimeout time.Duration
}

// New creates a service over the given repositories. A zero queryTimeout
// selects DefaultQueryTimeout.
func New(users storage.UserRepository, progress storage.ProgressRepository, hasher PasswordHasher, logger *slog.Logger, queryTimeout time.Duration) *Service {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:        users,
		progress:     progress,
		hasher:       hasher,
		logger:       logger,
		queryTimeout: queryTimeout,
	}
}

// query bounds a single repository call.
func (s *Service) query(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}
