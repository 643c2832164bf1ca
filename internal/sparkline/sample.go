// Package sparkline turns a price series into what a trend chart needs:
// a bounded sample, percent changes, pixel geometry and display strings.
package sparkline

import (
	"math"
	"time"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

const DefaultMaxPoints = 120

// Sample reduces points to roughly maxPoints by taking every step-th point
// from the first, step = ceil(len/maxPoints). The last point is always kept,
// so the result holds at most maxPoints+1 points. Input shorter than
// maxPoints is returned as is.
func Sample(points []models.PricePoint, maxPoints int) []models.PricePoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	step := (len(points) + maxPoints - 1) / maxPoints
	out := make([]models.PricePoint, 0, maxPoints+1)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}
	if (len(points)-1)%step != 0 {
		out = append(out, points[len(points)-1])
	}
	return out
}

// PercentChange compares the last price to the first, by position. It is
// undefined for an empty series or a zero or non-finite first price.
func PercentChange(points []models.PricePoint) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	first := points[0].Price
	last := points[len(points)-1].Price
	if first == 0 || math.IsNaN(first) || math.IsInf(first, 0) {
		return 0, false
	}
	return (last - first) / first * 100, true
}

// Since keeps the points at or after now-window.
func Since(points []models.PricePoint, now time.Time, window time.Duration) []models.PricePoint {
	cutoff := now.Add(-window).UnixMilli()
	for i, p := range points {
		if p.TimestampMs >= cutoff {
			return points[i:]
		}
	}
	return nil
}

type Change struct {
	Pct     float64
	Defined bool
}

func changeOf(points []models.PricePoint) Change {
	pct, ok := PercentChange(points)
	return Change{Pct: pct, Defined: ok}
}

// Changes holds the dashboard's 1h, 24h and full-window movements.
type Changes struct {
	Hour   Change
	Day    Change
	Window Change
}

// ChangesAt measures each horizon over the retained points inside it. points
// must be sorted ascending by timestamp.
func ChangesAt(points []models.PricePoint, now time.Time) Changes {
	return Changes{
		Hour:   changeOf(Since(points, now, time.Hour)),
		Day:    changeOf(Since(points, now, 24*time.Hour)),
		Window: changeOf(points),
	}
}
