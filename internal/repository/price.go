package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// PriceRepo is the Postgres series store. Rows are keyed by (asset_id, ts_ms).
type PriceRepo struct {
	pool  *pgxpool.Pool
	table string
}

var _ SeriesStore = (*PriceRepo)(nil)

func NewPriceRepo(pool *pgxpool.Pool, table string) *PriceRepo {
	return &PriceRepo{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

func (r *PriceRepo) UpsertBatch(ctx context.Context, points []models.PricePoint) ([]models.PricePoint, error) {
	if err := validateBatch(points); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (asset_id, ts_ms, price, market_cap)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset_id, ts_ms) DO UPDATE
		 SET price = EXCLUDED.price, market_cap = EXCLUDED.market_cap, updated_at = NOW()`,
		r.table,
	)

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(q, p.AssetID, p.TimestampMs, p.Price, p.MarketCap)
	}

	// A batch runs as one implicit transaction: one failed statement rolls
	// back the whole batch.
	br := r.pool.SendBatch(ctx, batch)
	var execErr error
	for i := range points {
		if _, err := br.Exec(); err != nil {
			execErr = fmt.Errorf("upsert point %d of %d: %w", i+1, len(points), err)
			break
		}
	}
	closeErr := br.Close()
	if execErr != nil {
		return points, execErr
	}
	if closeErr != nil {
		return points, fmt.Errorf("send batch: %w", closeErr)
	}
	return nil, nil
}

func (r *PriceRepo) QueryRange(ctx context.Context, q RangeQuery) (Page, error) {
	lo, hi, limit, err := q.bounds()
	if err != nil {
		return Page{}, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT asset_id, ts_ms, price, market_cap FROM %s
		 WHERE asset_id = $1 AND ts_ms BETWEEN $2 AND $3
		 ORDER BY ts_ms ASC LIMIT $4`, r.table),
		q.AssetID, lo, hi, limit+1,
	)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	points, err := collectPrices(rows)
	if err != nil {
		return Page{}, err
	}
	return pageOf(points, limit), nil
}

func (r *PriceRepo) Prune(ctx context.Context, beforeMs int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ts_ms < $1`, r.table), beforeMs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PriceRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Close is a no-op; the pool is owned by the caller.
func (r *PriceRepo) Close() error { return nil }

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.AssetID, &p.TimestampMs, &p.Price, &p.MarketCap); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
