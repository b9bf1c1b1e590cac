package handlers

import (
	"tiketi/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports liveness of the service and its dependencies.
func HealthCheck(c *fiber.Ctx) error {
	status := fiber.StatusOK
	checks := fiber.Map{"database": "ok", "cache": "ok"}

	sqlDB, err := repositories.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	if repositories.CacheService == nil || repositories.CacheService.HealthCheck(c.Context()) != nil {
		// Cache loss degrades performance, not correctness.
		checks["cache"] = "unavailable"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": checks,
	})
}
