package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk/internal/auth"
	"github.com/helpdeskpro/helpdesk/internal/presence"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// PresenceHandler exposes the online/offline marker endpoints.
type PresenceHandler struct {
	tracker *presence.Tracker
}

// NewPresenceHandler constructs handler.
func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Heartbeat POST /api/presence/heartbeat keeps the caller marked online.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.tracker.Heartbeat(c.Context(), principal.ID); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Offline DELETE /api/presence marks the caller offline on clean sign-out.
func (h *PresenceHandler) Offline(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.tracker.Offline(c.Context(), principal.ID); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Get GET /api/presence/:id reports another principal's presence.
func (h *PresenceHandler) Get(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	record, err := h.tracker.Get(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": record})
}
