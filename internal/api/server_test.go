package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/publish"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
	"github.com/RoeeEidan/Chain-Prices/internal/series"
)

var (
	fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	catalog  = []models.Asset{
		{ID: "BTC", Name: "Bitcoin"},
		{ID: "ETH", Name: "Ethereum"},
		{ID: "LINK", Name: "Chainlink"},
	}
)

type downStore struct{ *repository.MemoryRepo }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

// seedHourly writes n hourly points ending at fixedNow.
func seedHourly(t *testing.T, store repository.SeriesStore, assetID string, n int, price func(i int) float64) {
	t.Helper()
	end := fixedNow.UnixMilli()
	var batch []models.PricePoint
	for i := 0; i < n; i++ {
		ts := end - int64(n-1-i)*time.Hour.Milliseconds()
		batch = append(batch, models.PricePoint{AssetID: assetID, TimestampMs: ts, Price: price(i)})
		if len(batch) == repository.MaxBatchSize || i == n-1 {
			_, err := store.UpsertBatch(context.Background(), batch)
			require.NoError(t, err)
			batch = nil
		}
	}
}

func newTestServer(t *testing.T, store repository.SeriesStore, hub *publish.Hub) http.Handler {
	t.Helper()
	q := series.NewQuery(catalog, store, series.WithClock(func() time.Time { return fixedNow }))
	s := NewServer(store, q, ServerConfig{
		Port:        0,
		DefaultDays: 7,
		Precision:   2,
		Hub:         hub,
		Now:         func() time.Time { return fixedNow },
	})
	return s.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestCORS_Headers(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	rr := httptest.NewRecorder()
	corsMiddleware(inner, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/series", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))

	rr = httptest.NewRecorder()
	corsMiddleware(inner, "https://prices.example").ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/series", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "preflight must not reach the handler")
	assert.Equal(t, "https://prices.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 7, false},
		{"days=1", 1, false},
		{"days=90", 90, false},
		{"days=0", 0, true},
		{"days=91", 0, true},
		{"days=-3", 0, true},
		{"days=abc", 0, true},
		{"days=2.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/series?"+tt.query, nil)
			got, err := parseIntParam(r, "days", 7, 1, maxWindowDays)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeries_CatalogOrder(t *testing.T) {
	store := repository.NewMemoryRepo()
	seedHourly(t, store, "ETH", 48, func(i int) float64 { return 3000 + float64(i) })
	seedHourly(t, store, "BTC", 24, func(i int) float64 { return 60000 })
	h := newTestServer(t, store, nil)

	rr := get(t, h, "/v1/series?days=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	var out []seriesJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, []string{"BTC", "ETH", "LINK"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Len(t, out[0].Prices, 24)
	assert.Len(t, out[1].Prices, 25, "one day back inclusive of both ends")
	assert.NotNil(t, out[2].Prices)
	assert.Empty(t, out[2].Prices)
	assert.Empty(t, out[2].Error)
}

func TestSeries_PricesSerializeAsTsPrice(t *testing.T) {
	store := repository.NewMemoryRepo()
	seedHourly(t, store, "BTC", 1, func(int) float64 { return 61000.5 })
	h := newTestServer(t, store, nil)

	rr := get(t, h, "/v1/series?days=1")
	require.Equal(t, http.StatusOK, rr.Code)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	assert.JSONEq(t, `[{"ts":`+jsonInt(fixedNow.UnixMilli())+`,"price":61000.5}]`, string(raw[0]["prices"]))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSeries_BadDays(t *testing.T) {
	h := newTestServer(t, repository.NewMemoryRepo(), nil)
	for _, q := range []string{"days=0", "days=91", "days=abc"} {
		rr := get(t, h, "/v1/series?"+q)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		assert.Contains(t, rr.Body.String(), "days must be an integer")
	}
}

func TestSampled(t *testing.T) {
	store := repository.NewMemoryRepo()
	seedHourly(t, store, "ETH", 7*24, func(i int) float64 { return 100 + float64(i) })
	h := newTestServer(t, store, nil)

	rr := get(t, h, "/v1/series/ETH/sampled?days=7&max=20")
	require.Equal(t, http.StatusOK, rr.Code)

	var out sampledJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "ETH", out.ID)
	assert.Equal(t, 7*24, out.Total)
	assert.LessOrEqual(t, len(out.Points), 21)
	assert.Equal(t, fixedNow.UnixMilli(), out.Points[len(out.Points)-1].TimestampMs)
	assert.True(t, out.Up)
	assert.Equal(t, "$267.00", out.Price)
	require.NotNil(t, out.Changes.Window)
	assert.InDelta(t, 167.0, *out.Changes.Window, 1e-9)
	require.NotNil(t, out.Changes.Hour)
	require.NotNil(t, out.Changes.Day)
}

func TestSampled_EmptySeriesHasNullChanges(t *testing.T) {
	h := newTestServer(t, repository.NewMemoryRepo(), nil)

	rr := get(t, h, "/v1/series/LINK/sampled")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"1h":null`)
	assert.Contains(t, rr.Body.String(), `"window":null`)
	assert.Contains(t, rr.Body.String(), `"points":[]`)
	assert.NotContains(t, rr.Body.String(), `"price"`)
}

func TestSampled_Errors(t *testing.T) {
	h := newTestServer(t, repository.NewMemoryRepo(), nil)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/series/DOGE/sampled").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/series/BTC/sampled?max=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/series/BTC/sampled?days=120").Code)
}

func TestAssets(t *testing.T) {
	h := newTestServer(t, repository.NewMemoryRepo(), nil)

	rr := get(t, h, "/v1/assets")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []models.Asset
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, catalog, out)
}

func TestHealth(t *testing.T) {
	hub := publish.NewHub("")
	h := newTestServer(t, repository.NewMemoryRepo(), hub)

	rr := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var out healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "connected", out.Services.Store)
	require.NotNil(t, out.Services.Stream)
	assert.Equal(t, 0, *out.Services.Stream)
	assert.Equal(t, "2026-01-15T12:00:00Z", out.Timestamp)
}

func TestHealth_StoreDown(t *testing.T) {
	h := newTestServer(t, downStore{repository.NewMemoryRepo()}, nil)

	rr := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"degraded"`)
	assert.NotContains(t, rr.Body.String(), "streamClients")
}

func TestMetricsRouteOnlyWhenConfigured(t *testing.T) {
	h := newTestServer(t, repository.NewMemoryRepo(), nil)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/stream").Code)
}

func TestDashboard(t *testing.T) {
	store := repository.NewMemoryRepo()
	seedHourly(t, store, "BTC", 48, func(i int) float64 { return 60000 - float64(i) })
	h := newTestServer(t, store, nil)

	rr := get(t, h, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, `id="row-BTC"`)
	assert.Contains(t, body, `id="row-LINK"`)
	assert.Contains(t, body, "Bitcoin")
	assert.Contains(t, body, `class="spark down"`)
	assert.Contains(t, body, `class="hit"`)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/?days=0").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}
