package controllers

import (
	"context"
	"time"

	"schoolhub_go/database"

	"github.com/gofiber/fiber/v2"
)

type HealthController struct{}

// GetHealthStatus reports database and Redis connectivity.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	status := "ok"
	statusCode := fiber.StatusOK

	dbStatus := "ok"
	if database.DB == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unreachable"
	}
	if dbStatus != "ok" {
		status = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	redisStatus := "ok"
	if redisClient := database.GetRedisClient(); redisClient == nil {
		redisStatus = "unavailable"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "unreachable"
		}
	}
	// Redis is an optimization layer; its loss does not fail the service.

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().UTC(),
	})
}
