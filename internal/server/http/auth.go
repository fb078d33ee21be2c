package http

import (
	"errors"

	"questlog/internal/server/core"
	"questlog/internal/server/metrics"
	"questlog/internal/server/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterHandler creates a new user account
func (h *HTTPHandler) RegisterHandler(c *fiber.Ctx) error {
	req, err := validatedBody[core.RegisterRequest](c)
	if err != nil {
		return err
	}

	id, err := h.svc.Register(c.UserContext(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		h.metrics.AuthAttempt("register", metrics.OutcomeRejected)
		return badRequest("email already registered", core.ErrAlreadyRegistered, "")
	case err != nil:
		h.metrics.AuthAttempt("register", metrics.OutcomeError)
		return err
	}

	h.metrics.AuthAttempt("register", metrics.OutcomeSuccess)
	return c.Status(fiber.StatusCreated).JSON(core.IDResponse{
		ID:      id,
		Message: "created",
	})
}

// LoginHandler verifies credentials and returns the account
func (h *HTTPHandler) LoginHandler(c *fiber.Ctx) error {
	req, err := validatedBody[core.LoginRequest](c)
	if err != nil {
		return err
	}

	user, err := h.svc.Authenticate(c.UserContext(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		h.metrics.AuthAttempt("login", metrics.OutcomeRejected)
		// Always return same error to prevent user enumeration
		return &requestError{
			status: fiber.StatusUnauthorized,
			body: core.ErrorResponse{
				Error: "invalid credentials",
				Code:  core.ErrInvalidCredentials,
			},
		}
	case err != nil:
		h.metrics.AuthAttempt("login", metrics.OutcomeError)
		return err
	}

	h.metrics.AuthAttempt("login", metrics.OutcomeSuccess)
	return c.JSON(core.UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}
