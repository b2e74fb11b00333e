package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/api/http/handlers"
	"github.com/spec-kit/sla-guard/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	TicketActions  *handlers.TicketActionsHandler
	Comments       *handlers.CommentsHandler
	Notifications  *handlers.NotificationsHandler
	SLA            *handlers.SLAHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.AuthMiddleware.Optional, cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	authn := cfg.AuthMiddleware.Handle
	app.Get("/metrics", authn, auth.RequireCapability(auth.ActionViewAllTickets), cfg.Health.Metrics)
	app.Get("/staff", authn, cfg.Users.ListStaff)

	tickets := app.Group("/tickets", authn)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/high-risk", cfg.Tickets.HighRisk)
	tickets.Get("/escalated", cfg.Tickets.Escalated)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/activity", cfg.Tickets.Activity)
	tickets.Post("/:id/accept", cfg.TicketActions.Accept)
	tickets.Post("/:id/reassign", cfg.TicketActions.Reassign)
	tickets.Post("/:id/escalate", cfg.TicketActions.Escalate)
	tickets.Post("/:id/progress", cfg.TicketActions.Progress)
	tickets.Post("/:id/resolve", cfg.TicketActions.Resolve)
	tickets.Get("/:id/comments", cfg.Comments.List)
	tickets.Post("/:id/comments", cfg.Comments.Add)

	comments := app.Group("/comments", authn)
	comments.Put("/:id", cfg.Comments.Edit)
	comments.Delete("/:id", cfg.Comments.Delete)

	notifications := app.Group("/notifications", authn)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	slaGroup := app.Group("/sla", authn)
	slaGroup.Get("/config", cfg.SLA.Config)
	slaGroup.Put("/config/:priority", auth.RequireCapability(auth.ActionManageSLA), cfg.SLA.SetLimit)

	analytics := app.Group("/analytics", authn)
	analytics.Get("/overview", cfg.Analytics.Overview)
	analytics.Get("/risk-distribution", cfg.Analytics.RiskDistribution)
	analytics.Get("/technician-workload", cfg.Analytics.TechnicianWorkload)
}
