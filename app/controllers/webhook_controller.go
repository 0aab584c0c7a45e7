package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/brandping/BrandPing/internal/pkg/billing"
	"github.com/brandping/BrandPing/internal/pkg/cache"
	"github.com/brandping/BrandPing/internal/pkg/database"
	"github.com/brandping/BrandPing/internal/pkg/env"
	"github.com/brandping/BrandPing/internal/pkg/idempotency"
	"github.com/brandping/BrandPing/internal/pkg/ratelimit"
	"github.com/brandping/BrandPing/internal/pkg/webhookauth"
)

// BillingProviderDodo is the payment provider whose webhooks we ingest.
const BillingProviderDodo = "dodo"

const webhookRequestTimeout = 15 * time.Second

// WebhookController runs the payment-webhook pipeline:
// rate-limit (pre-auth) -> freshness -> signature -> rate-limit (post-auth)
// -> parse -> reserve -> reconcile -> persist. Dependencies are injected
// once at startup; request handlers only read them.
type WebhookController struct {
	Service *billing.Service
	Guard   *idempotency.Guard

	// PreLimiter is the coarse per-IP budget checked before any signature
	// work; PostLimiter is the tighter budget for authenticated senders.
	PreLimiter  ratelimit.Limiter
	PostLimiter ratelimit.Limiter

	Secret  string
	MaxSkew time.Duration

	PreLimit   int
	PreWindow  time.Duration
	PostLimit  int
	PostWindow time.Duration

	Now func() time.Time
}

// NewWebhookController wires the pipeline against the process-wide MySQL
// and Redis handles. The Redis-backed limiter and idempotency store carry a
// local in-process fallback, so a cache outage degrades to per-instance
// behavior instead of rejecting webhooks.
func NewWebhookController() *WebhookController {
	svc := billing.NewServiceFromDB(database.GetDB())
	durable := ratelimit.NewRedisLimiter(cache.GetClient(), 0)
	local := ratelimit.NewLocalLimiter(0)
	limiter := ratelimit.NewFailoverLimiter(durable, local)

	return &WebhookController{
		Service:     svc,
		Guard:       idempotency.NewGuard(svc.Repo()),
		PreLimiter:  limiter,
		PostLimiter: limiter,
		Secret:      env.GetEnv("DODO_WEBHOOK_SECRET", ""),
		MaxSkew:     env.GetEnvDuration("WEBHOOK_MAX_SKEW", webhookauth.DefaultMaxSkew),
		PreLimit:    env.GetEnvInt("WEBHOOK_RATE_PRE_LIMIT", 60),
		PreWindow:   env.GetEnvDuration("WEBHOOK_RATE_PRE_WINDOW", time.Minute),
		PostLimit:   env.GetEnvInt("WEBHOOK_RATE_POST_LIMIT", 10),
		PostWindow:  env.GetEnvDuration("WEBHOOK_RATE_POST_WINDOW", time.Minute),
	}
}

func (wc *WebhookController) now() time.Time {
	if wc.Now != nil {
		return wc.Now()
	}
	return time.Now()
}

// HandlePaymentWebhook is the single externally reachable billing endpoint.
func (wc *WebhookController) HandlePaymentWebhook(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookRequestTimeout)
	defer cancel()

	ip := c.IP()

	if limited, err := wc.takeBudget(ctx, c, "webhook:pre:"+ip, wc.PreLimit, wc.PreWindow); limited || err != nil {
		return err
	}

	if strings.TrimSpace(wc.Secret) == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_secret_not_configured"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := func(name string) string { return c.Get(name) }

	// Freshness bounds the replay window even for a captured valid
	// signature, so it is checked regardless of signature validity.
	if err := webhookauth.CheckFreshness(headers, wc.now(), wc.MaxSkew); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "stale_timestamp"})
	}
	if !webhookauth.Verify(headers, rawBody, wc.Secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	if limited, err := wc.takeBudget(ctx, c, "webhook:post:"+ip, wc.PostLimit, wc.PostWindow); limited || err != nil {
		return err
	}

	event, err := billing.ParseEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if event.Kind != billing.EventOther && !event.HasUserIdentity() {
		// Fail fast before reserving: nothing has been mutated yet and the
		// provider's retry may carry the missing metadata.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_user_identity"})
	}

	eventID := strings.TrimSpace(c.Get(webhookauth.HeaderID))
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created := wc.Guard.Reserve(ctx, idempotency.Record{
		Provider:  BillingProviderDodo,
		EventID:   eventID,
		EventType: event.Type,
		Payload:   string(rawBody),
	})
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	repo := wc.Service.Repo()
	if event.Kind == billing.EventOther {
		_ = repo.MarkWebhookProcessed(ctx, BillingProviderDodo, eventID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	_, _, applyErr := wc.Service.Apply(ctx, event, wc.now())
	_ = repo.MarkWebhookProcessed(ctx, BillingProviderDodo, eventID, applyErr)
	if applyErr != nil {
		if errors.Is(applyErr, billing.ErrProfileNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_user"})
		}
		// The profile store has no fallback path; surface the dependency
		// failure. The event stays reserved, which is the documented
		// seen-but-not-applied edge case.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "profile_store_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// takeBudget consumes one unit from the named bucket. When the budget is
// exhausted it writes the 429 response and reports limited=true so the
// handler stops; a fiber.Ctx.JSON nil result is not a usable "proceed"
// signal, so the decision travels separately from the write error.
func (wc *WebhookController) takeBudget(ctx context.Context, c *fiber.Ctx, key string, limit int, window time.Duration) (limited bool, err error) {
	res, err := wc.limiterFor(key).Take(ctx, key, limit, window)
	if err != nil {
		// Both limiter paths failing is a local map failure, which cannot
		// happen in practice; do not fail the request over rate accounting.
		return false, nil
	}
	if res.Allowed {
		return false, nil
	}

	retrySecs := int(res.RetryAfter / time.Second)
	if retrySecs < 1 {
		retrySecs = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retrySecs))
	return true, c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":             "rate_limited",
		"retryAfterSeconds": retrySecs,
	})
}

func (wc *WebhookController) limiterFor(key string) ratelimit.Limiter {
	if strings.HasPrefix(key, "webhook:post:") {
		return wc.PostLimiter
	}
	return wc.PreLimiter
}
