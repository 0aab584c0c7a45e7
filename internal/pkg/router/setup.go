package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers all route groups. The webhook router comes first so
// its handlers never sit behind the authenticated-API middleware chain.
func InstallRouter(app *fiber.App) {
	setup(app, NewWebhookRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
