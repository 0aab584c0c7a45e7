package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/brandping/BrandPing/app/controllers"
	"github.com/brandping/BrandPing/internal/pkg/cache"
	"github.com/brandping/BrandPing/internal/pkg/database"
	"github.com/brandping/BrandPing/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", handleHealth)

	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1", middleware.APIKeyAuth())
	v1.Get("/bootstrap", controllers.HandleBootstrap)
	v1.Get("/mentions", controllers.HandleListMentions)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// handleHealth reports liveness plus the state of both backing stores. The
// endpoint stays 200 as long as the process serves; degraded stores show up
// in the body for the load balancer's health detail page.
func handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if db := database.GetDB(); db == nil {
		dbStatus = "down"
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "down"
	}

	redisStatus := "ok"
	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		redisStatus = "down"
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
		"db":     dbStatus,
		"redis":  redisStatus,
	})
}
