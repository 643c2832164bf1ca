package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RoeeEidan/Chain-Prices/internal/httputil"
	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/sparkline"
)

// WebhookSink POSTs each batch of written points to an HTTP endpoint. Chat
// webhooks (Discord, Slack) receive a one-line price summary, anything else
// receives the points as JSON.
type WebhookSink struct {
	url        string
	username   string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewWebhookSink(url, username string) *WebhookSink {
	if username == "" {
		username = "ChainPrices"
	}
	return &WebhookSink{
		url:        url,
		username:   username,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Enabled() bool { return s.url != "" }

func (s *WebhookSink) Publish(ctx context.Context, points []models.PricePoint) error {
	if !s.Enabled() || len(points) == 0 {
		return nil
	}

	body, err := json.Marshal(s.formatPayload(points))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	resp, err := httputil.Do(ctx, s.httpClient.Do, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) formatPayload(points []models.PricePoint) any {
	switch {
	case strings.Contains(s.url, "discord"):
		return map[string]string{"content": summary(points), "username": s.username}
	case strings.Contains(s.url, "slack"):
		return map[string]string{"text": fmt.Sprintf("`%s`", summary(points)), "username": s.username}
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = wirePoint(p)
	}
	return map[string]any{"source": s.username, "points": out}
}

func summary(points []models.PricePoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = p.AssetID + " " + sparkline.FormatUSD(p.Price)
	}
	return strings.Join(parts, " | ")
}
