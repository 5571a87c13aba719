package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}
}

// ReadyzHandler reports readiness of the two backing stores the engine
// cannot serve without. RabbitMQ is excluded: the API accepts campaigns
// even while the broker reconnects.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{
			"postgres": checkStatus(sqlDB.PingContext(ctx)),
			"redis":    checkStatus(rdb.Ping(ctx).Err()),
		}

		status := "ready"
		statusCode := fiber.StatusOK
		for _, v := range checks {
			if v == "down" {
				status = "not_ready"
				statusCode = fiber.StatusServiceUnavailable
				break
			}
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func checkStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}
