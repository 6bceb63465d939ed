package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxWebhookErrorBody = 512

// WebhookConfig configures WebhookChannel.
type WebhookConfig struct {
	URL          string
	SecretHeader string
	Secret       string
}

// WebhookChannel POSTs the payload to a single HTTP endpoint.
type WebhookChannel struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhookChannel(cfg WebhookConfig, client *http.Client) (*WebhookChannel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is required")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookChannel{cfg: cfg, client: client}, nil
}

func (c *WebhookChannel) Deliver(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(msg.Payload))
	if err != nil {
		return NewNonRetryableError(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.RecordID.String())
	for k, v := range msg.Attributes() {
		req.Header.Set(headerName(k), v)
	}
	if c.cfg.Secret != "" && c.cfg.SecretHeader != "" {
		req.Header.Set(c.cfg.SecretHeader, c.cfg.Secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookErrorBody))
	statusErr := fmt.Errorf("webhook responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if retryableStatus(resp.StatusCode) {
		return statusErr
	}
	return NewNonRetryableError(statusErr)
}

func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// headerName turns aggregate_type into X-Hrcore-Aggregate-Type.
func headerName(attr string) string {
	parts := strings.Split(attr, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return "X-Hrcore-" + strings.Join(parts, "-")
}
