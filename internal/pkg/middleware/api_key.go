package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/brandping/BrandPing/app/models"
	"github.com/brandping/BrandPing/internal/pkg/database"
)

// ProfileContextKey is the Locals key holding the authenticated *models.Profile.
const ProfileContextKey = "PROFILE"

// APIKeyAuth authenticates API requests carrying a profile API key, either as
// X-API-Key or as a bearer token. The key is hashed before lookup; plaintext
// keys are never stored.
func APIKeyAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Print("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		hash := models.HashAPIKey(apiKey)
		var profile models.Profile
		if err := db.Where("api_key_hash = ?", hash).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Printf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if !profile.IsActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Profile inactive"})
		}

		c.Locals(ProfileContextKey, &profile)
		return c.Next()
	}
}

// ProfileFromContext returns the profile stored by APIKeyAuth, or nil when the
// route is not behind the middleware.
func ProfileFromContext(c *fiber.Ctx) *models.Profile {
	profile, _ := c.Locals(ProfileContextKey).(*models.Profile)
	return profile
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
