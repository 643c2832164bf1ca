// Package dashboard renders the price table with inline sparklines.
package dashboard

import (
	"fmt"
	"time"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/sparkline"
)

const placeholder = "-"

type Options struct {
	Now       time.Time
	Format    sparkline.Formatter
	Width     float64
	Height    float64
	MaxPoints int
}

func DefaultOptions(now time.Time) Options {
	return Options{
		Now:       now,
		Format:    sparkline.NewFormatter(sparkline.DefaultPrecision),
		Width:     sparkline.DefaultWidth,
		Height:    sparkline.DefaultHeight,
		MaxPoints: sparkline.DefaultMaxPoints,
	}
}

// Cell is a change column value with its trend class ("up", "down" or "").
type Cell struct {
	Text  string
	Class string
}

type Band struct {
	Left, Width float64
	Label       string
}

type Chart struct {
	ID     string
	Width  float64
	Height float64
	Line   string
	Area   string
	Up     bool
	Bands  []Band
}

type Row struct {
	ID        string
	Name      string
	Price     string
	MarketCap string
	Hour      Cell
	Day       Cell
	Window    Cell
	Chart     *Chart
	Updated   string
	Error     bool
}

// BuildRows returns one row per series, in input order. Series that are
// empty or failed become placeholder rows marked Error.
func BuildRows(series []models.CoinSeries, opts Options) []Row {
	rows := make([]Row, 0, len(series))
	for i, s := range series {
		rows = append(rows, buildRow(i, s, opts))
	}
	return rows
}

func buildRow(i int, s models.CoinSeries, opts Options) Row {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	last, ok := s.Latest()
	if s.Err != nil || !ok {
		blank := Cell{Text: placeholder}
		return Row{
			ID: s.ID, Name: name,
			Price: placeholder, MarketCap: placeholder,
			Hour: blank, Day: blank, Window: blank,
			Updated: "Error",
			Error:   true,
		}
	}

	changes := sparkline.ChangesAt(s.Prices, opts.Now)
	row := Row{
		ID:        s.ID,
		Name:      name,
		Price:     opts.Format.USD(last.Price),
		MarketCap: placeholder,
		Hour:      changeCell(changes.Hour),
		Day:       changeCell(changes.Day),
		Window:    changeCell(changes.Window),
		Chart:     buildChart(fmt.Sprintf("spark-%d", i), s.Prices, opts),
		Updated:   sparkline.TimeAgo(last.TimestampMs, opts.Now),
	}
	if last.MarketCap != nil {
		row.MarketCap = opts.Format.USD(*last.MarketCap)
	}
	return row
}

func changeCell(c sparkline.Change) Cell {
	if !c.Defined {
		return Cell{Text: placeholder}
	}
	class := "up"
	if c.Pct < 0 {
		class = "down"
	}
	return Cell{Text: sparkline.FormatPct(c.Pct), Class: class}
}

func buildChart(id string, points []models.PricePoint, opts Options) *Chart {
	sampled := sparkline.Sample(points, opts.MaxPoints)
	c := sparkline.Layout(sampled, opts.Width, opts.Height)
	if c.Empty() {
		return nil
	}
	return &Chart{
		ID:     id,
		Width:  opts.Width,
		Height: opts.Height,
		Line:   c.Path(),
		Area:   c.AreaPath(),
		Up:     c.Up(),
		Bands:  hoverBands(c, opts.Format),
	}
}

// hoverBands splits the chart into one vertical strip per sample. Every x in
// a strip resolves to that sample under Chart.NearestIndex.
func hoverBands(c sparkline.Chart, f sparkline.Formatter) []Band {
	n := len(c.Coords)
	bands := make([]Band, n)
	half := (c.Width - 2) / 2
	if n > 1 {
		half = (c.Width - 2) / float64(n-1) / 2
	}
	for i, xy := range c.Coords {
		left := xy.X - half
		right := xy.X + half
		if i == 0 {
			left = 0
		}
		if i == n-1 {
			right = c.Width
		}
		p := c.Points[i]
		bands[i] = Band{
			Left:  left,
			Width: right - left,
			Label: f.USD(p.Price) + " · " + sparkline.FormatTooltipTime(p.TimestampMs),
		}
	}
	return bands
}
