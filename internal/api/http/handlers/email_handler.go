package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/api/dto"
	"github.com/helpdeskpro/helpdesk/internal/mail"
)

// EmailHandler proxies transactional email through the relay.
type EmailHandler struct {
	mailer mail.Mailer
	logger *zap.Logger
}

// NewEmailHandler constructs handler.
func NewEmailHandler(mailer mail.Mailer, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{mailer: mailer, logger: logger}
}

// SendEmail handles POST /api/send-email. Unconfigured credentials and
// delivery failures both answer 500 by contract.
func (h *EmailHandler) SendEmail(c *fiber.Ctx) error {
	var req dto.SendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "invalid payload"})
	}

	err := h.mailer.Send(c.Context(), mail.Message{
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		h.logger.Error("email send failed", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send email"})
	}
	return c.JSON(fiber.Map{"success": true})
}
