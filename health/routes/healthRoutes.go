package routes

import (
	"context"

	"boleto-import-backend/health/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func HealthRouterInit(app *fiber.App, db *gorm.DB, redisClient *redis.Client) {
	healthController := &controllers.HealthController{
		Database: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Redis: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	health := app.Group("/health")
	health.Get("/", healthController.Health)
	health.Get("/liveness", healthController.Liveness)
	health.Get("/readiness", healthController.Readiness)
}
