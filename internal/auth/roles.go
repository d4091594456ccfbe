package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// RequireAgent rejects callers whose principal is not an agent. Role checks
// are also enforced inside the service layer; this guard just fails fast at
// the router for agent-only route groups.
func RequireAgent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != domain.RoleAgent {
			return apperrors.NewForbidden("agent role required")
		}
		return c.Next()
	}
}
