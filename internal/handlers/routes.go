package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the status server
func NewApp(health *HealthHandler, stats *StatsHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Vitals Pipeline",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", health.HealthCheck)
	app.Get("/stats", stats.GetStats)

	return app
}
