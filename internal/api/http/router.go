package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Rules          *handlers.RulesHandler
	Tickets        *handlers.TicketsHandler
	Escalations    *handlers.EscalationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Catalog and lookup endpoints are
// open reads; everything that mutates state requires a service token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	rules := app.Group("/rules")
	rules.Get("/categories", cfg.Rules.Categories)
	rules.Get("/subcategories", cfg.Rules.Subcategories)
	rules.Get("/issues", cfg.Rules.Issues)
	rules.Get("/match", cfg.Rules.Match)
	rules.Get("/stats", cfg.Rules.Stats)
	rules.Put("/", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleAdmin), cfg.Rules.Replace)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", auth.RequireRole(auth.RoleAgent), cfg.Tickets.CreateTicket)
	tickets.Get("/:id", auth.RequireRole(), cfg.Tickets.GetTicket)
	tickets.Post("/:id/transition", auth.RequireRole(auth.RoleAgent), cfg.Tickets.Transition)
	tickets.Post("/:id/priority", auth.RequireRole(auth.RoleAgent), cfg.Tickets.SetPriority)
	tickets.Post("/:id/escalate", auth.RequireRole(auth.RoleAgent, auth.RoleScheduler), cfg.Tickets.Escalate)

	escalations := app.Group("/escalations", cfg.AuthMiddleware.Handle)
	escalations.Post("/process", auth.RequireRole(auth.RoleScheduler), cfg.Escalations.ProcessPending)
}
