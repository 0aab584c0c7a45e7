package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/brandping/BrandPing/internal/pkg/alerts"
	"github.com/brandping/BrandPing/internal/pkg/cache"
	"github.com/brandping/BrandPing/internal/pkg/database"
	"github.com/brandping/BrandPing/internal/pkg/env"
	"github.com/brandping/BrandPing/internal/pkg/router"
)

func main() {
	app, dispatcher := NewApplication()

	dispatcher.Start()
	defer dispatcher.Stop()

	// Graceful shutdown on SIGINT/SIGTERM so in-flight webhook requests and
	// alert deliveries finish before the process exits.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Print("shutting down...")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *alerts.Dispatcher) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName:   "BrandPing",
		BodyLimit: 1 * 1024 * 1024, // webhook payloads are small JSON bodies
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app)

	dispatcher := alerts.NewDispatcher(
		cache.GetClient(),
		alerts.NewStore(database.GetDB()),
		alerts.NewSlackSender(0),
		env.GetEnvInt("ALERT_WORKERS", 3),
	)

	return app, dispatcher
}
