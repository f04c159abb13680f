package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soochol/minizaps/internal/zaps"
)

// maxResponseChars caps how much of the response body is kept in the result.
const maxResponseChars = 1000

const defaultWebhookTimeout = 30 * time.Second

// allowedMethods is the set of HTTP methods the webhook connector supports.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// bodyMethods send the templated body as JSON.
var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// WebhookConfig configures the webhook connector.
type WebhookConfig struct {
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Headers map[string]any `json:"headers"`
	Body    any            `json:"body"`
}

func (c WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("url is required")
	}
	if m := c.method(); !allowedMethods[m] {
		return fmt.Errorf("unsupported HTTP method: %q", m)
	}
	return nil
}

func (c WebhookConfig) method() string {
	if c.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(c.Method)
}

// Webhook sends an HTTP request, templating the body from the execution
// context.
type Webhook struct {
	client *http.Client
}

func NewWebhook(timeout time.Duration) Connector {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return NewTyped[WebhookConfig](&Webhook{client: &http.Client{Timeout: timeout}})
}

func (w *Webhook) Type() string { return "webhook" }

func (w *Webhook) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"format":      "uri",
				"description": "Target URL for the webhook",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []any{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default": "POST",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to send",
			},
			"body": map[string]any{
				"type":        "object",
				"description": "Request body (supports {{variable}} templating)",
			},
		},
		"required": []any{"url"},
	}
}

func (w *Webhook) Run(ctx context.Context, cfg WebhookConfig, ectx zaps.ExecutionContext) zaps.ConnectorResult {
	method := cfg.method()

	var bodyReader io.Reader
	if bodyMethods[method] {
		body := cfg.Body
		if body == nil {
			body = map[string]any{}
		}
		payload, err := json.Marshal(RenderTemplate(body, ectx))
		if err != nil {
			return zaps.Failed(fmt.Sprintf("Webhook failed: %v", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bodyReader)
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Webhook failed: %v", err))
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Webhook failed: %v", err))
	}
	defer resp.Body.Close()

	// Read a little more than needed; truncation is by character, not byte.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseChars*4))
	if err != nil {
		return zaps.Failed(fmt.Sprintf("Webhook failed: %v", err))
	}

	msg := fmt.Sprintf("Webhook %s to %s: %d", method, cfg.URL, resp.StatusCode)
	data := map[string]any{
		"status_code":   resp.StatusCode,
		"response_body": truncateChars(string(raw), maxResponseChars),
	}
	return zaps.ConnectorResult{Success: resp.StatusCode < 400, Message: msg, Data: data}
}

func truncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
