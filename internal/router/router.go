package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vidya-labs/vidya-go-api/internal/config"
	"github.com/vidya-labs/vidya-go-api/internal/handler"
	"github.com/vidya-labs/vidya-go-api/internal/middleware"
	"github.com/vidya-labs/vidya-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	DocumentHandler *handler.DocumentHandler
	GradingHandler  *handler.GradingHandler
	RosterHandler   *handler.RosterHandler
	ProgressHandler *handler.ProgressHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.DocumentHandler != nil {
		documents := api.Group("/documents", jwtMiddleware)
		// Extraction dispatches vision model calls; rate limit it separately
		// from plain CRUD.
		documents.Use("/:id/extract", middleware.RateLimit("extraction", 10, time.Minute))
		deps.DocumentHandler.Register(documents)
	}

	// Progress websocket skips JWT: the unguessable public id is the
	// capability, and browser websocket clients cannot set headers.
	if deps.ProgressHandler != nil {
		deps.ProgressHandler.Register(api.Group("/documents"))
	}

	if deps.GradingHandler != nil {
		// Evaluation dispatches model calls; rate limit it and keep it
		// teacher-only.
		evaluations := api.Group("/evaluations",
			jwtMiddleware,
			middleware.RequireRole("teacher", "admin"),
			middleware.RateLimit("evaluations", 30, time.Minute),
		)
		deps.GradingHandler.Register(evaluations)
	}

	if deps.RosterHandler != nil {
		students := api.Group("/students", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.RosterHandler.RegisterStudents(students)

		tests := api.Group("/tests", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.RosterHandler.RegisterTests(tests)
	}
}
