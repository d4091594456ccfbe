package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskpro/helpdesk/internal/api/http/handlers"
	"github.com/helpdeskpro/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Email          *handlers.EmailHandler
	Tickets        *handlers.TicketsHandler
	AgentTickets   *handlers.AgentTicketsHandler
	Presence       *handlers.PresenceHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	api.Post("/users/create", cfg.Users.Create)
	api.Get("/users/verify", cfg.Users.Verify)
	api.Post("/users/login", cfg.Users.Login)
	api.Post("/send-email", cfg.Email.SendEmail)

	protected := api.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Post("/tickets/:id/comments", cfg.Tickets.AddComment)
	protected.Get("/tickets/:id/comments", cfg.Tickets.ListComments)

	agents := protected.Group("", auth.RequireAgent())
	agents.Patch("/tickets/:id/status", cfg.AgentTickets.UpdateStatus)
	agents.Patch("/tickets/:id/priority", cfg.AgentTickets.UpdatePriority)
	agents.Post("/tickets/:id/assign", cfg.AgentTickets.Assign)

	protected.Post("/presence/heartbeat", cfg.Presence.Heartbeat)
	protected.Delete("/presence", cfg.Presence.Offline)
	protected.Get("/presence/:id", cfg.Presence.Get)
}
