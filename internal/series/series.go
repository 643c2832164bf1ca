// Package series reads stored price points back as per-asset series.
package series

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

var ErrInvalidWindow = errors.New("window must be a positive number of days")

// Pages yields every point of assetID within [fromMs, toMs] in ascending
// order, fetching one store page at a time. Each range over the returned
// sequence starts a fresh query. Iteration stops after the first error.
func Pages(ctx context.Context, store repository.SeriesStore, assetID string, fromMs, toMs int64, pageSize int) iter.Seq2[models.PricePoint, error] {
	return func(yield func(models.PricePoint, error) bool) {
		q := repository.RangeQuery{AssetID: assetID, FromMs: fromMs, ToMs: toMs, Limit: pageSize}
		for {
			page, err := store.QueryRange(ctx, q)
			if err != nil {
				yield(models.PricePoint{}, err)
				return
			}
			for _, p := range page.Points {
				if !yield(p, nil) {
					return
				}
			}
			if page.Last() {
				return
			}
			q.Cursor = page.Next
		}
	}
}

// Collect drains a page sequence into a slice.
func Collect(seq iter.Seq2[models.PricePoint, error]) ([]models.PricePoint, error) {
	points := []models.PricePoint{}
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// Query answers window requests over the whole catalog.
type Query struct {
	catalog  []models.Asset
	store    repository.SeriesStore
	pageSize int
	timeout  time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *log.Entry
}

type Option func(*Query)

func WithClock(now func() time.Time) Option { return func(q *Query) { q.now = now } }
func WithPageSize(n int) Option             { return func(q *Query) { q.pageSize = n } }
func WithMetrics(m *metrics.Metrics) Option { return func(q *Query) { q.metrics = m } }

// WithTimeout bounds each per-asset read.
func WithTimeout(d time.Duration) Option { return func(q *Query) { q.timeout = d } }

func NewQuery(catalog []models.Asset, store repository.SeriesStore, opts ...Option) *Query {
	q := &Query{
		catalog:  catalog,
		store:    store,
		pageSize: repository.DefaultPageSize,
		now:      time.Now,
		log:      log.WithField("component", "series"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Query) Catalog() []models.Asset { return q.catalog }

// Bounds returns the [from, to] millisecond range covering the last windowDays.
func (q *Query) Bounds(windowDays int) (fromMs, toMs int64, err error) {
	if windowDays <= 0 {
		return 0, 0, ErrInvalidWindow
	}
	toMs = q.now().UnixMilli()
	return toMs - int64(windowDays)*dayMs, toMs, nil
}

// Window returns one series per catalog asset, in catalog order. A store
// failure for one asset is reported on that entry and does not fail others.
func (q *Query) Window(ctx context.Context, windowDays int) ([]models.CoinSeries, error) {
	fromMs, toMs, err := q.Bounds(windowDays)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer q.metrics.ObserveQuery("window", start)

	out := make([]models.CoinSeries, len(q.catalog))
	var wg sync.WaitGroup
	for i, asset := range q.catalog {
		wg.Add(1)
		go func(i int, asset models.Asset) {
			defer wg.Done()
			out[i] = q.read(ctx, asset, fromMs, toMs)
		}(i, asset)
	}
	wg.Wait()
	return out, nil
}

// Asset returns the series of a single catalog asset over the window.
func (q *Query) Asset(ctx context.Context, assetID string, windowDays int) (models.CoinSeries, bool, error) {
	fromMs, toMs, err := q.Bounds(windowDays)
	if err != nil {
		return models.CoinSeries{}, false, err
	}
	for _, a := range q.catalog {
		if a.ID == assetID {
			start := time.Now()
			defer q.metrics.ObserveQuery("asset", start)
			return q.read(ctx, a, fromMs, toMs), true, nil
		}
	}
	return models.CoinSeries{}, false, nil
}

func (q *Query) read(ctx context.Context, asset models.Asset, fromMs, toMs int64) models.CoinSeries {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	s := models.CoinSeries{ID: asset.ID, Name: asset.Name}
	points, err := Collect(Pages(ctx, q.store, asset.ID, fromMs, toMs, q.pageSize))
	if err != nil {
		q.log.WithField("asset", asset.ID).Errorf("query failed: %v", err)
		if q.metrics != nil {
			q.metrics.QueryErrors.WithLabelValues(asset.ID).Inc()
		}
		s.Err = err
		s.Prices = []models.PricePoint{}
		return s
	}
	s.Prices = points
	return s
}
