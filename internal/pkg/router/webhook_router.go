package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/brandping/BrandPing/app/controllers"
)

// WebhookRouter exposes the payment-provider callback. The pipeline does its
// own rate limiting, so no fiber limiter middleware sits in front of it.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	wc := controllers.NewWebhookController()
	app.Post("/webhooks/dodo", wc.HandlePaymentWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
