package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Issues *handlers.IssuesHandler
}

// RegisterRoutes wires HTTP routes. Static segments under /issues are
// registered before /issues/:id.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	issues := app.Group("/issues")
	issues.Post("/", cfg.Issues.CreateIssue)
	issues.Get("/", cfg.Issues.ListIssues)
	issues.Post("/search", cfg.Issues.SearchIssues)
	issues.Get("/export", cfg.Issues.ExportIssues)
	issues.Patch("/escalations/:escalation_id", cfg.Issues.UpdateEscalation)

	issues.Get("/:id", cfg.Issues.GetIssue)
	issues.Put("/:id", cfg.Issues.UpdateIssue)
	issues.Delete("/:id", cfg.Issues.DeleteIssue)
	issues.Patch("/:id/status", cfg.Issues.UpdateStatus)
	issues.Patch("/:id/assign", cfg.Issues.AssignIssue)
	issues.Patch("/:id/priority", cfg.Issues.UpdatePriority)

	issues.Post("/:id/activities", cfg.Issues.CreateActivity)
	issues.Get("/:id/activities", cfg.Issues.ListActivities)
	issues.Post("/:id/escalations", cfg.Issues.CreateEscalation)
	issues.Get("/:id/escalations", cfg.Issues.ListEscalations)
}
