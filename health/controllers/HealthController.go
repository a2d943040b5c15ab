package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Checker pings one dependency
type Checker func(ctx context.Context) error

const checkTimeout = 2 * time.Second

type HealthController struct {
	Database Checker
	Redis    Checker
}

// Health reports the API and its dependencies, 503 when any of them is down
func (hc *HealthController) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), checkTimeout)
	defer cancel()

	database := runCheck(ctx, hc.Database)
	redis := runCheck(ctx, hc.Redis)

	status := "ok"
	code := fiber.StatusOK
	if database != "up" || redis != "up" {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"database":  database,
		"redis":     redis,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func runCheck(ctx context.Context, check Checker) string {
	if check == nil {
		return "unknown"
	}
	if err := check(ctx); err != nil {
		return "down"
	}
	return "up"
}

// Liveness only reports that the process is serving requests
func (hc *HealthController) Liveness(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// Readiness reports whether the database can take traffic
func (hc *HealthController) Readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), checkTimeout)
	defer cancel()

	if runCheck(ctx, hc.Database) != "up" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  "database is not reachable",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ready"})
}
