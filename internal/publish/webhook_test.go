package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoeeEidan/Chain-Prices/internal/httputil"
	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

var webhookPoints = []models.PricePoint{
	{AssetID: "BTC", TimestampMs: 1700000000000, Price: 61234.5},
	{AssetID: "LINK", TimestampMs: 1700000000000, Price: 14.25},
}

func fastRetry(s *WebhookSink) *WebhookSink {
	s.retry = httputil.RetryConfig{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return s
}

func TestWebhookSink_JSONPayload(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "")
	require.NoError(t, sink.Publish(context.Background(), webhookPoints))

	assert.JSONEq(t, `"ChainPrices"`, string(got["source"]))
	var pts []Point
	require.NoError(t, json.Unmarshal(got["points"], &pts))
	require.Len(t, pts, 2)
	assert.Equal(t, "LINK", pts[1].ID)
	assert.Equal(t, 14.25, pts[1].Price)
}

func TestWebhookSink_ChatSummary(t *testing.T) {
	sink := NewWebhookSink("https://discord.com/api/webhooks/1/abc", "prices")
	payload, ok := sink.formatPayload(webhookPoints).(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "BTC $61,234.50 | LINK $14.25", payload["content"])
	assert.Equal(t, "prices", payload["username"])

	sink = NewWebhookSink("https://hooks.slack.com/services/x", "prices")
	payload, ok = sink.formatPayload(webhookPoints).(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "`BTC $61,234.50 | LINK $14.25`", payload["text"])
}

func TestWebhookSink_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := fastRetry(NewWebhookSink(srv.URL, "")).Publish(context.Background(), webhookPoints)
	require.Error(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhookSink_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := fastRetry(NewWebhookSink(srv.URL, "")).Publish(context.Background(), webhookPoints)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWebhookSink_DisabledIsNoop(t *testing.T) {
	sink := NewWebhookSink("", "")
	assert.False(t, sink.Enabled())
	assert.NoError(t, sink.Publish(context.Background(), webhookPoints))
}
