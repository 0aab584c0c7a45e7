package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/brandping/BrandPing/app/models"
	"github.com/brandping/BrandPing/internal/pkg/database"
	"github.com/brandping/BrandPing/internal/pkg/middleware"
)

// HandleBootstrap returns everything the dashboard needs for first paint:
// the profile, its brands and keywords, and the route the client should land
// on given the onboarding and billing state.
func HandleBootstrap(c *fiber.Ctx) error {
	profile := middleware.ProfileFromContext(c)
	if profile == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()

	var brands []models.Brand
	if err := db.Where("user_id = ?", profile.ID).Order("created_at ASC").Find(&brands).Error; err != nil {
		log.Warnf("[Bootstrap] brand lookup for %s failed: %v", profile.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	var keywords []models.Keyword
	if err := db.Where("user_id = ?", profile.ID).Order("created_at ASC").Find(&keywords).Error; err != nil {
		log.Warnf("[Bootstrap] keyword lookup for %s failed: %v", profile.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{
		"profile":   profile,
		"brands":    brands,
		"keywords":  keywords,
		"nextRoute": nextRoute(profile, time.Now()),
	})
}

// nextRoute decides where the client lands. Onboarding comes first, then plan
// selection; a profile whose trial expired without payment is sent back to
// plan selection.
func nextRoute(p *models.Profile, now time.Time) string {
	if !p.OnboardingDone {
		return "/onboarding"
	}
	if p.IsPaid() || p.TrialActive(now) {
		return "/dashboard"
	}
	return "/select-plan"
}

const maxMentionPageSize = 100

// HandleListMentions returns the newest mentions matching the caller's
// keywords, newest first.
func HandleListMentions(c *fiber.Ctx) error {
	profile := middleware.ProfileFromContext(c)
	if profile == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	limit := c.QueryInt("limit", 25)
	if limit < 1 {
		limit = 1
	}
	if limit > maxMentionPageSize {
		limit = maxMentionPageSize
	}

	type mentionRow struct {
		models.Mention
		KeywordID    string `json:"keyword_id"`
		MatchedQuery string `json:"matched_query"`
	}

	var rows []mentionRow
	err := database.GetDB().
		Table("mention_matches").
		Select("mentions.*, mention_matches.keyword_id, mention_matches.matched_query").
		Joins("JOIN mentions ON mentions.id = mention_matches.mention_id").
		Where("mention_matches.user_id = ?", profile.ID).
		Order("mentions.published_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		log.Warnf("[Mentions] listing for %s failed: %v", profile.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if rows == nil {
		rows = []mentionRow{}
	}
	return c.JSON(fiber.Map{"mentions": rows, "count": len(rows)})
}
