// Package handlers serves the pipeline's health and stats endpoints.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const checkTimeout = 5 * time.Second

// Check a named dependency probe
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthResponse body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthHandler reports whether the warehouse and queue are reachable
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler creates a health handler over checks
func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), checkTimeout)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	status := "healthy"

	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			services[check.Name] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			services[check.Name] = "healthy"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}
