// Package export writes stored series to columnar files.
package export

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// Row is one price point in the export file. A missing market cap is
// written as null.
type Row struct {
	Asset     string   `parquet:"asset"`
	Name      string   `parquet:"name"`
	Timestamp int64    `parquet:"ts"` // Unix milliseconds
	Price     float64  `parquet:"price"`
	MarketCap *float64 `parquet:"market_cap"`
}

// Rows flattens series in order. Series that failed to load are skipped.
func Rows(series []models.CoinSeries) []Row {
	var n int
	for _, s := range series {
		n += len(s.Prices)
	}
	rows := make([]Row, 0, n)
	for _, s := range series {
		if s.Err != nil {
			continue
		}
		for _, p := range s.Prices {
			r := Row{Asset: s.ID, Name: s.Name, Timestamp: p.TimestampMs, Price: p.Price}
			if p.MarketCap != nil {
				mc := *p.MarketCap
				r.MarketCap = &mc
			}
			rows = append(rows, r)
		}
	}
	return rows
}

// WriteParquet writes every loaded point of series to path and returns the
// number of rows written.
func WriteParquet(path string, series []models.CoinSeries) (int, error) {
	rows := Rows(series)
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("write parquet %s: %w", path, err)
	}
	return len(rows), nil
}
