package service

import (
	"context"
	"errors"
	"fmt"

	"questlog/internal/server/storage"
)

// Register creates an account and returns its id. Username may be empty.
func (s *Service) Register(ctx context.Context, username, email, password string) (int64, error) {
	_, err := s.findUser(ctx, email)
	switch {
	case err == nil:
		return 0, ErrEmailTaken
	case !errors.Is(err, storage.ErrNotFound):
		return 0, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	qctx, cancel := s.query(ctx)
	defer cancel()

	id, err := s.users.Create(qctx, username, email, passwordHash)
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost a race with a concurrent registration for the same email.
		return 0, fmt.Errorf("%w: %w", ErrEmailTaken, err)
	}
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", id)
	return id, nil
}

// Authenticate verifies credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := s.findUser(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// Always hash to prevent timing attacks
		_, _ = s.hasher.Hash(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) findUser(ctx context.Context, email string) (*storage.User, error) {
	qctx, cancel := s.query(ctx)
	defer cancel()
	return s.users.FindByEmail(qctx, email)
}
