// Package ingest runs one ingestion cycle: read every catalog feed, build
// price points, persist them in bounded batches and hand them to sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/ethereum"
	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
)

// ErrInvalidObservation marks a feed answer that cannot become a price point.
var ErrInvalidObservation = errors.New("invalid observation")

// FeedReader is the subset of the chain adapter the task needs.
type FeedReader interface {
	LatestRound(ctx context.Context, asset models.Asset) (ethereum.Round, error)
	TokenSupply(ctx context.Context, asset models.Asset) (ethereum.Supply, error)
}

// Sink receives points after they were written to the store.
type Sink interface {
	Name() string
	Publish(ctx context.Context, points []models.PricePoint) error
}

type Report struct {
	RunID          string
	Attempted      int
	Written        int
	Failed         int
	Invalid        int
	SupplyFailures int
	Dropped        int
	Duration       time.Duration
}

type Task struct {
	catalog      []models.Asset
	feeds        FeedReader
	store        repository.SeriesStore
	sinks        []Sink
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	log          *log.Entry
}

type Option func(*Task)

func WithSinks(sinks ...Sink) Option {
	return func(t *Task) { t.sinks = append(t.sinks, sinks...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Task) { t.metrics = m }
}

// WithStoreTimeout bounds each UpsertBatch call.
func WithStoreTimeout(d time.Duration) Option {
	return func(t *Task) { t.storeTimeout = d }
}

func New(catalog []models.Asset, feeds FeedReader, store repository.SeriesStore, opts ...Option) *Task {
	t := &Task{
		catalog: catalog,
		feeds:   feeds,
		store:   store,
		log:     log.WithField("component", "ingest"),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// observation is the outcome of reading one asset.
type observation struct {
	res          models.Result[models.PricePoint]
	supplyFailed bool
}

// Run executes one cycle. Per-asset failures are logged and counted in the
// report; only a cancelled context is returned as an error.
func (t *Task) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Attempted: len(t.catalog)}
	logger := t.log.WithField("run", rep.RunID)

	obs := make([]observation, len(t.catalog))
	var wg sync.WaitGroup
	for i, asset := range t.catalog {
		wg.Add(1)
		go func(i int, asset models.Asset) {
			defer wg.Done()
			obs[i] = t.observe(ctx, logger, asset)
		}(i, asset)
	}
	wg.Wait()

	var points []models.PricePoint
	for i, o := range obs {
		asset := t.catalog[i]
		if o.supplyFailed {
			rep.SupplyFailures++
			t.count(func(m *metrics.Metrics) { m.SupplyFailures.WithLabelValues(asset.ID).Inc() })
		}
		if o.res.OK() {
			points = append(points, o.res.Value)
			continue
		}
		entry := logger.WithField("asset", asset.ID)
		if errors.Is(o.res.Err, ErrInvalidObservation) {
			rep.Invalid++
			entry.Warnf("skipping point: %v", o.res.Err)
			t.count(func(m *metrics.Metrics) { m.InvalidPoints.WithLabelValues(asset.ID).Inc() })
		} else {
			rep.Failed++
			entry.Errorf("feed read failed: %v", o.res.Err)
			t.count(func(m *metrics.Metrics) { m.FeedFailures.WithLabelValues(asset.ID).Inc() })
		}
	}

	if err := ctx.Err(); err != nil {
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("ingest cancelled: %w", err)
	}

	if len(points) == 0 {
		logger.Warn("no valid points this cycle; store untouched")
		rep.Duration = time.Since(start)
		t.finish(rep)
		return rep, nil
	}

	written := t.persist(ctx, logger, points, &rep)
	t.publish(ctx, logger, written)

	rep.Duration = time.Since(start)
	t.finish(rep)
	logger.WithFields(log.Fields{
		"written":  rep.Written,
		"failed":   rep.Failed,
		"invalid":  rep.Invalid,
		"dropped":  rep.Dropped,
		"duration": rep.Duration.Round(time.Millisecond),
	}).Info("cycle complete")
	return rep, nil
}

func (t *Task) observe(ctx context.Context, logger *log.Entry, asset models.Asset) observation {
	round, err := t.feeds.LatestRound(ctx, asset)
	if err != nil {
		return observation{res: models.Fail[models.PricePoint](err)}
	}

	if round.UpdatedAt > math.MaxInt64/1000 {
		return observation{res: models.Fail[models.PricePoint](fmt.Errorf(
			"%w: updatedAt=%d out of range", ErrInvalidObservation, round.UpdatedAt))}
	}
	p := models.PricePoint{
		AssetID:     asset.ID,
		TimestampMs: int64(round.UpdatedAt) * 1000,
		Price:       round.Price(),
	}
	if round.Answer == nil || round.Answer.Cmp(big.NewInt(0)) <= 0 || !p.Valid() {
		return observation{res: models.Fail[models.PricePoint](fmt.Errorf(
			"%w: answer=%v updatedAt=%d", ErrInvalidObservation, round.Answer, round.UpdatedAt))}
	}

	var supplyFailed bool
	if asset.HasToken() {
		supply, err := t.feeds.TokenSupply(ctx, asset)
		if err != nil {
			supplyFailed = true
			logger.WithField("asset", asset.ID).Warnf("supply read failed, market cap omitted: %v", err)
		} else {
			mc := supply.Amount() * p.Price
			p.MarketCap = &mc
		}
	}
	return observation{res: models.Ok(p), supplyFailed: supplyFailed}
}

// persist writes points in chunks and returns the ones the store accepted.
func (t *Task) persist(ctx context.Context, logger *log.Entry, points []models.PricePoint, rep *Report) []models.PricePoint {
	var written []models.PricePoint
	for i, chunk := range lo.Chunk(points, repository.MaxBatchSize) {
		unprocessed, err := t.upsert(ctx, chunk)
		if err != nil {
			rep.Dropped += len(chunk)
			logger.WithField("batch", i).Errorf("batch write failed, %d points dropped: %v", len(chunk), err)
			t.countDropped(chunk)
			continue
		}
		if len(unprocessed) > 0 {
			rep.Dropped += len(unprocessed)
			logger.WithField("batch", i).Warnf("%d unprocessed points not retried", len(unprocessed))
			t.countDropped(unprocessed)
		}

		skip := lo.Associate(unprocessed, func(p models.PricePoint) (string, struct{}) {
			return pointKey(p), struct{}{}
		})
		for _, p := range chunk {
			if _, ok := skip[pointKey(p)]; ok {
				continue
			}
			written = append(written, p)
			t.count(func(m *metrics.Metrics) { m.PointsWritten.WithLabelValues(p.AssetID).Inc() })
		}
	}
	rep.Written = len(written)
	return written
}

func (t *Task) upsert(ctx context.Context, chunk []models.PricePoint) ([]models.PricePoint, error) {
	if t.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.storeTimeout)
		defer cancel()
	}
	return t.store.UpsertBatch(ctx, chunk)
}

func (t *Task) publish(ctx context.Context, logger *log.Entry, points []models.PricePoint) {
	if len(points) == 0 {
		return
	}
	for _, s := range t.sinks {
		if err := s.Publish(ctx, points); err != nil {
			logger.WithField("sink", s.Name()).Errorf("publish failed: %v", err)
			t.count(func(m *metrics.Metrics) { m.SinkErrors.WithLabelValues(s.Name()).Inc() })
		}
	}
}

func (t *Task) finish(rep Report) {
	t.count(func(m *metrics.Metrics) {
		m.IngestDuration.Observe(rep.Duration.Seconds())
		status := "ok"
		switch {
		case rep.Written == 0:
			status = "empty"
		case rep.Failed+rep.Invalid+rep.Dropped > 0:
			status = "partial"
		}
		m.IngestRuns.WithLabelValues(status).Inc()
		if rep.Written > 0 {
			m.LastIngestion.SetToCurrentTime()
		}
	})
}

func (t *Task) countDropped(points []models.PricePoint) {
	t.count(func(m *metrics.Metrics) {
		for _, p := range points {
			m.PointsDropped.WithLabelValues(p.AssetID).Inc()
		}
	})
}

func (t *Task) count(fn func(m *metrics.Metrics)) {
	if t.metrics != nil {
		fn(t.metrics)
	}
}

func pointKey(p models.PricePoint) string {
	return fmt.Sprintf("%s|%d", p.AssetID, p.TimestampMs)
}
