package models

import (
	"math"
	"time"
)

// PricePoint is one observation of an asset's feed. (AssetID, TimestampMs) is
// the natural key; points are written once and never mutated.
type PricePoint struct {
	AssetID     string   `json:"-"`
	TimestampMs int64    `json:"ts"`
	Price       float64  `json:"price"`
	MarketCap   *float64 `json:"marketCap,omitempty"`
}

func (p PricePoint) Time() time.Time {
	return time.UnixMilli(p.TimestampMs).UTC()
}

// Valid reports whether the point may be persisted.
func (p PricePoint) Valid() bool {
	return p.TimestampMs > 0 && !math.IsNaN(p.Price) && !math.IsInf(p.Price, 0)
}

// CoinSeries is the per-asset result of a range query, sorted ascending by
// timestamp. Err is set when the store could not be read for this asset.
type CoinSeries struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Prices []PricePoint `json:"prices"`
	Err    error        `json:"-"`
}

// Latest returns the most recent point, or false for an empty series.
func (s CoinSeries) Latest() (PricePoint, bool) {
	if len(s.Prices) == 0 {
		return PricePoint{}, false
	}
	return s.Prices[len(s.Prices)-1], true
}
