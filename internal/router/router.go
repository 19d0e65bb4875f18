package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/mikadit/modqueue/internal/handler"
	"github.com/mikadit/modqueue/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Review *handler.ReviewHandler
	Report *handler.ReportHandler
	Flag   *handler.FlagHandler
	Health *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	// Health checks (before API group, no auth needed)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)

	// Prometheus metrics
	app.Get("/metrics", handler.MetricsHandler())

	// Rate limiters
	reportLimiter := middleware.NewReportRateLimiter()
	actionLimiter := middleware.NewReviewActionRateLimiter()
	flagLimiter := middleware.NewFlagSubmitRateLimiter()

	// API routes
	api := app.Group("/api")

	// Flag queue report
	api.Get("/flagged", h.Report.List, reportLimiter.Handler())
	api.Get("/flagged/topics", h.Report.Topics, reportLimiter.Handler())

	// Review actions
	api.Post("/flagged/:id/agree", h.Review.Agree, actionLimiter.Handler())
	api.Post("/flagged/:id/disagree", h.Review.Disagree, actionLimiter.Handler())
	api.Post("/flagged/:id/defer", h.Review.Defer, actionLimiter.Handler())

	// Flag intake
	api.Post("/flags", h.Flag.Submit, flagLimiter.Handler())
}
