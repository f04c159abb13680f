package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soochol/minizaps/internal/zaps"
)

// SlackConfig configures the slack connector.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
	Text       string `json:"text"`
	Channel    string `json:"channel"`
}

func (c SlackConfig) Validate() error {
	if strings.TrimSpace(c.WebhookURL) == "" {
		return errors.New("webhook_url is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("text is required")
	}
	return nil
}

// Slack posts a message to a Slack incoming webhook. The text is templated
// from the execution context like webhook bodies.
type Slack struct {
	client *http.Client
}

func NewSlack(timeout time.Duration) Connector {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return NewTyped[SlackConfig](&Slack{client: &http.Client{Timeout: timeout}})
}

func (s *Slack) Type() string { return "slack" }

func (s *Slack) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"webhook_url": map[string]any{
				"type":        "string",
				"format":      "uri",
				"description": "Slack incoming webhook URL",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Message text (supports {{variable}} templating)",
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Channel override",
			},
		},
		"required": []any{"webhook_url", "text"},
	}
}

func (s *Slack) Run(ctx context.Context, cfg SlackConfig, ectx zaps.ExecutionContext) zaps.ConnectorResult {
	text, _ := RenderTemplate(cfg.Text, ectx).(string)
	payload := map[string]string{"text": text}
	if cfg.Channel != "" {
		payload["channel"] = cfg.Channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Slack failed: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Slack failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Slack failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return zaps.Failed(fmt.Sprintf("Slack API returned %d", resp.StatusCode))
	}
	return zaps.Succeeded(fmt.Sprintf("Slack message sent (%d chars)", len([]rune(text))), map[string]any{
		"status_code": resp.StatusCode,
		"text":        text,
	})
}
