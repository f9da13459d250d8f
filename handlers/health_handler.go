package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	// DatabaseCheck is nil when the service runs without persistence
	DatabaseCheck func(ctx context.Context) error
}

func NewHealthHandler(databaseCheck func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{DatabaseCheck: databaseCheck}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	database := "disabled"
	status := "ok"
	if h.DatabaseCheck != nil {
		database = "ok"
		if err := h.DatabaseCheck(c.UserContext()); err != nil {
			database = "unreachable"
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().Unix(),
	})
}
