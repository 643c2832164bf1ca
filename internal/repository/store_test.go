package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := EncodeCursor(1700000000123)
	ts, err := DecodeCursor(c)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)

	_, err = DecodeCursor("not-a-cursor!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	_, err = DecodeCursor(Cursor("AAAA"))
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestRangeQuery_Bounds(t *testing.T) {
	lo, hi, limit, err := RangeQuery{AssetID: "BTC", FromMs: 10, ToMs: 20}.bounds()
	require.NoError(t, err)
	assert.Equal(t, int64(10), lo)
	assert.Equal(t, int64(20), hi)
	assert.Equal(t, DefaultPageSize, limit)

	lo, _, _, err = RangeQuery{AssetID: "BTC", FromMs: 10, ToMs: 20, Cursor: EncodeCursor(15)}.bounds()
	require.NoError(t, err)
	assert.Equal(t, int64(16), lo)

	_, _, limit, _ = RangeQuery{AssetID: "BTC", ToMs: 1, Limit: MaxPageSize * 2}.bounds()
	assert.Equal(t, MaxPageSize, limit)

	_, _, _, err = RangeQuery{FromMs: 1, ToMs: 2}.bounds()
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, _, err = RangeQuery{AssetID: "BTC", FromMs: 5, ToMs: 2}.bounds()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateBatch(t *testing.T) {
	assert.NoError(t, validateBatch(nil))
	assert.ErrorIs(t, validateBatch(make([]models.PricePoint, MaxBatchSize+1)), ErrBatchTooLarge)
	assert.ErrorIs(t, validateBatch([]models.PricePoint{{AssetID: "BTC", TimestampMs: 0, Price: 1}}), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]models.PricePoint{{TimestampMs: 1, Price: 1}}), ErrInvalidInput)
}

// storeSuite exercises the SeriesStore contract against any backend.
func storeSuite(t *testing.T, newStore func(t *testing.T) SeriesStore) {
	ctx := context.Background()

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		mc := 1e12
		p := models.PricePoint{AssetID: "BTC", TimestampMs: 1000, Price: 42000, MarketCap: &mc}

		for i := 0; i < 2; i++ {
			unprocessed, err := s.UpsertBatch(ctx, []models.PricePoint{p})
			require.NoError(t, err)
			assert.Empty(t, unprocessed)
		}

		page, err := s.QueryRange(ctx, RangeQuery{AssetID: "BTC", FromMs: 0, ToMs: 2000})
		require.NoError(t, err)
		require.Len(t, page.Points, 1)
		assert.Equal(t, 42000.0, page.Points[0].Price)
		require.NotNil(t, page.Points[0].MarketCap)
		assert.Equal(t, mc, *page.Points[0].MarketCap)
		assert.True(t, page.Last())
	})

	t.Run("upsert overwrites price", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, []models.PricePoint{{AssetID: "ETH", TimestampMs: 5, Price: 1}})
		require.NoError(t, err)
		_, err = s.UpsertBatch(ctx, []models.PricePoint{{AssetID: "ETH", TimestampMs: 5, Price: 2}})
		require.NoError(t, err)

		page, err := s.QueryRange(ctx, RangeQuery{AssetID: "ETH", FromMs: 0, ToMs: 10})
		require.NoError(t, err)
		require.Len(t, page.Points, 1)
		assert.Equal(t, 2.0, page.Points[0].Price)
		assert.Nil(t, page.Points[0].MarketCap)
	})

	t.Run("paginates in ascending order", func(t *testing.T) {
		s := newStore(t)
		var batch []models.PricePoint
		for i := 1; i <= 200; i++ {
			batch = append(batch, models.PricePoint{AssetID: "LINK", TimestampMs: int64(i * 1000), Price: float64(i)})
			if len(batch) == MaxBatchSize {
				_, err := s.UpsertBatch(ctx, batch)
				require.NoError(t, err)
				batch = batch[:0]
			}
		}
		_, err := s.UpsertBatch(ctx, []models.PricePoint{{AssetID: "UNI", TimestampMs: 1500, Price: 5}})
		require.NoError(t, err)

		var all []models.PricePoint
		q := RangeQuery{AssetID: "LINK", FromMs: 0, ToMs: 1_000_000}
		pages := 0
		for {
			page, err := s.QueryRange(ctx, q)
			require.NoError(t, err)
			pages++
			all = append(all, page.Points...)
			if page.Last() {
				break
			}
			q.Cursor = page.Next
		}

		assert.Equal(t, 2, pages)
		require.Len(t, all, 200)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].TimestampMs, all[i].TimestampMs)
		}
		assert.Equal(t, "LINK", all[0].AssetID)
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, []models.PricePoint{
			{AssetID: "AAVE", TimestampMs: 10, Price: 1},
			{AssetID: "AAVE", TimestampMs: 20, Price: 2},
			{AssetID: "AAVE", TimestampMs: 30, Price: 3},
		})
		require.NoError(t, err)

		page, err := s.QueryRange(ctx, RangeQuery{AssetID: "AAVE", FromMs: 10, ToMs: 20})
		require.NoError(t, err)
		assert.Len(t, page.Points, 2)

		page, err = s.QueryRange(ctx, RangeQuery{AssetID: "MISSING", FromMs: 0, ToMs: 100})
		require.NoError(t, err)
		assert.Empty(t, page.Points)
		assert.True(t, page.Last())
	})

	t.Run("prune drops old points", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertBatch(ctx, []models.PricePoint{
			{AssetID: "YFI", TimestampMs: 100, Price: 1},
			{AssetID: "YFI", TimestampMs: 200, Price: 2},
			{AssetID: "DAI", TimestampMs: 150, Price: 1},
		})
		require.NoError(t, err)

		n, err := s.Prune(ctx, 180)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		page, err := s.QueryRange(ctx, RangeQuery{AssetID: "YFI", FromMs: 0, ToMs: 1000})
		require.NoError(t, err)
		require.Len(t, page.Points, 1)
		assert.Equal(t, int64(200), page.Points[0].TimestampMs)
	})

	t.Run("rejects oversized batch", func(t *testing.T) {
		s := newStore(t)
		points := make([]models.PricePoint, MaxBatchSize+1)
		for i := range points {
			points[i] = models.PricePoint{AssetID: "COMP", TimestampMs: int64(i + 1), Price: 1}
		}
		_, err := s.UpsertBatch(ctx, points)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestMemoryRepo(t *testing.T) {
	storeSuite(t, func(t *testing.T) SeriesStore { return NewMemoryRepo() })
}

func TestMemoryRepo_Count(t *testing.T) {
	m := NewMemoryRepo()
	_, err := m.UpsertBatch(context.Background(), []models.PricePoint{
		{AssetID: "BTC", TimestampMs: 1, Price: 1},
		{AssetID: "BTC", TimestampMs: 1, Price: 2},
		{AssetID: "BTC", TimestampMs: 2, Price: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count("BTC"))
	assert.Equal(t, 0, m.Count("ETH"))
}
