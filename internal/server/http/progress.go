package http

import (
	"errors"

	"questlog/internal/server/core"
	"questlog/internal/server/service"

	"github.com/gofiber/fiber/v2"
)

// ProgressHandler records the latest progress for a quest
func (h *HTTPHandler) ProgressHandler(c *fiber.Ctx) error {
	req, err := validatedBody[core.ProgressRequest](c)
	if err != nil {
		return err
	}

	id, err := h.svc.RecordProgress(c.UserContext(), req.Email, req.QuestID, req.Progress, req.Data)
	if errors.Is(err, service.ErrInvalidData) {
		return badRequest("data must be valid JSON", core.ErrInvalidRequest, "data must be a JSON value or a string containing JSON")
	}
	if err != nil {
		return err
	}

	return c.JSON(core.IDResponse{
		ID:      id,
		Message: "ok",
	})
}
