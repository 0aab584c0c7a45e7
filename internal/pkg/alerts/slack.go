package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brandping/BrandPing/app/models"
)

const excerptLimit = 280

// PendingAlert is one Slack notification ready to send, with everything the
// message needs already joined in.
type PendingAlert struct {
	DeliveryID uint
	Mention    models.Mention
	BrandName  string
	Query      string
	WebhookURL string
}

func platformLabel(platform string) string {
	switch platform {
	case "hackernews":
		return "Hacker News"
	case "reddit":
		return "Reddit"
	case "devto":
		return "Dev.to"
	}
	return platform
}

// BuildSlackPayload renders the Block Kit message for a mention alert.
func BuildSlackPayload(alert PendingAlert) map[string]any {
	mention := alert.Mention
	brand := alert.BrandName
	if brand == "" {
		brand = "your brand"
	}
	platform := platformLabel(mention.Platform)

	published := mention.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")
	summary := strings.TrimSpace(mention.BodyExcerpt)
	if summary == "" {
		summary = "No preview text available."
	}
	if len(summary) > excerptLimit {
		summary = summary[:excerptLimit]
	}

	return map[string]any{
		"text": fmt.Sprintf("New %s mention for '%s'", platform, alert.Query),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("New %s mention", platform),
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": "*Brand*\n" + brand},
					{"type": "mrkdwn", "text": "*Keyword*\n" + alert.Query},
					{"type": "mrkdwn", "text": "*Source*\n" + platform},
					{"type": "mrkdwn", "text": "*Published*\n" + published},
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s*\n%s", mention.Title, summary),
				},
			},
			{
				"type": "actions",
				"elements": []map[string]any{
					{
						"type": "button",
						"text": map[string]any{"type": "plain_text", "text": "Open mention"},
						"url":  mention.URL,
					},
				},
			},
		},
	}
}

// SlackSender posts alert payloads to per-user incoming webhooks.
type SlackSender struct {
	client *http.Client
}

func NewSlackSender(timeout time.Duration) *SlackSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackSender{client: &http.Client{Timeout: timeout}}
}

// Send posts the alert and fails on any non-2xx response.
func (s *SlackSender) Send(ctx context.Context, alert PendingAlert) error {
	body, err := json.Marshal(BuildSlackPayload(alert))
	if err != nil {
		return fmt.Errorf("alerts: marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, alert.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alerts: slack responded %d", resp.StatusCode)
	}
	return nil
}
