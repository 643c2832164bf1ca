package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// MemoryRepo is an in-process series store, used for local runs and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]map[int64]models.PricePoint // asset -> ts -> point
}

var _ SeriesStore = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]map[int64]models.PricePoint)}
}

func (m *MemoryRepo) UpsertBatch(_ context.Context, points []models.PricePoint) ([]models.PricePoint, error) {
	if err := validateBatch(points); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		series, ok := m.data[p.AssetID]
		if !ok {
			series = make(map[int64]models.PricePoint)
			m.data[p.AssetID] = series
		}
		cp := p
		if p.MarketCap != nil {
			v := *p.MarketCap
			cp.MarketCap = &v
		}
		series[p.TimestampMs] = cp
	}
	return nil, nil
}

func (m *MemoryRepo) QueryRange(_ context.Context, q RangeQuery) (Page, error) {
	lo, hi, limit, err := q.bounds()
	if err != nil {
		return Page{}, err
	}

	m.mu.RLock()
	var result []models.PricePoint
	for ts, p := range m.data[q.AssetID] {
		if ts >= lo && ts <= hi {
			result = append(result, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	if len(result) > limit+1 {
		result = result[:limit+1]
	}
	return pageOf(result, limit), nil
}

func (m *MemoryRepo) Prune(_ context.Context, beforeMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for asset, series := range m.data {
		for ts := range series {
			if ts < beforeMs {
				delete(series, ts)
				n++
			}
		}
		if len(series) == 0 {
			delete(m.data, asset)
		}
	}
	return n, nil
}

// Count returns the number of stored points for an asset.
func (m *MemoryRepo) Count(assetID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[assetID])
}

func (m *MemoryRepo) Ping(context.Context) error { return nil }
func (m *MemoryRepo) Close() error               { return nil }
