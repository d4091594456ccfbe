package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/api/dto"
	"github.com/helpdeskpro/helpdesk/internal/service"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// UsersHandler exposes the provisioning and auth endpoints.
type UsersHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{auth: authService, logger: logger}
}

// Create handles POST /api/users/create. Identity creation, profile write
// and verification email collapse to a single error path by contract.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "invalid payload"})
	}

	user, err := h.auth.ProvisionUser(c.Context(), service.ProvisionInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		h.logger.Error("user provisioning failed", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"uid":     user.ID,
		"message": "User created successfully. Verification email sent.",
	})
}

// Login handles POST /api/users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.UserResponse{
				ID:       user.ID,
				Email:    user.Email,
				Name:     user.Name,
				Role:     user.Role,
				PhotoURL: user.PhotoURL,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Verify handles GET /api/users/verify?token=.
func (h *UsersHandler) Verify(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return apperrors.NewValidationError("token required", nil)
	}
	if err := h.auth.VerifyEmail(c.Context(), token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Email verified."})
}
