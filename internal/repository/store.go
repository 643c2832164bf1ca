package repository

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

const (
	// MaxBatchSize is the largest batch a single UpsertBatch call accepts.
	MaxBatchSize = 25

	DefaultPageSize = 100
	MaxPageSize     = 1000
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidCursor = errors.New("invalid continuation cursor")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d items", MaxBatchSize)
)

// Cursor is an opaque continuation token. The empty cursor starts a query
// from the beginning; a page with an empty Next cursor is the last one.
type Cursor string

type RangeQuery struct {
	AssetID string
	FromMs  int64 // inclusive
	ToMs    int64 // inclusive
	Cursor  Cursor
	Limit   int
}

type Page struct {
	Points []models.PricePoint
	Next   Cursor
}

func (p Page) Last() bool { return p.Next == "" }

// SeriesStore persists price points keyed by (asset, timestamp).
//
// UpsertBatch is idempotent on the natural key. Entries the store could not
// write are returned as unprocessed; callers decide whether to retry them.
// QueryRange returns points in ascending timestamp order.
type SeriesStore interface {
	UpsertBatch(ctx context.Context, points []models.PricePoint) (unprocessed []models.PricePoint, err error)
	QueryRange(ctx context.Context, q RangeQuery) (Page, error)
	Prune(ctx context.Context, beforeMs int64) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func EncodeCursor(lastTs int64) Cursor {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(lastTs))
	return Cursor(base64.RawURLEncoding.EncodeToString(b[:]))
}

func DecodeCursor(c Cursor) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil || len(b) != 8 {
		return 0, ErrInvalidCursor
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// bounds resolves the effective inclusive timestamp range and page size for q.
func (q RangeQuery) bounds() (lo, hi int64, limit int, err error) {
	if q.AssetID == "" || q.ToMs < q.FromMs {
		return 0, 0, 0, ErrInvalidInput
	}
	lo, hi = q.FromMs, q.ToMs
	if q.Cursor != "" {
		last, err := DecodeCursor(q.Cursor)
		if err != nil {
			return 0, 0, 0, err
		}
		if last+1 > lo {
			lo = last + 1
		}
	}
	limit = q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return lo, hi, limit, nil
}

// pageOf trims a result fetched with limit+1 rows into a page and its cursor.
func pageOf(rows []models.PricePoint, limit int) Page {
	if len(rows) <= limit {
		return Page{Points: rows}
	}
	rows = rows[:limit]
	return Page{Points: rows, Next: EncodeCursor(rows[len(rows)-1].TimestampMs)}
}

func validateBatch(points []models.PricePoint) error {
	if len(points) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	for _, p := range points {
		if p.AssetID == "" || !p.Valid() {
			return fmt.Errorf("%w: point %s@%d", ErrInvalidInput, p.AssetID, p.TimestampMs)
		}
	}
	return nil
}
