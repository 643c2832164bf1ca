package sparkline

import (
	"math"
	"strconv"
	"strings"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

const (
	DefaultWidth  = 160
	DefaultHeight = 40
)

type Coord struct {
	X, Y float64
}

// Chart maps a series into a width x height box with a 1px inset, y flipped
// so higher prices sit higher on screen.
type Chart struct {
	Width, Height float64
	Points        []models.PricePoint
	Coords        []Coord
}

func Layout(points []models.PricePoint, width, height float64) Chart {
	c := Chart{Width: width, Height: height, Points: points}
	n := len(points)
	if n == 0 {
		return c
	}

	lo, hi := points[0].Price, points[0].Price
	for _, p := range points[1:] {
		lo = math.Min(lo, p.Price)
		hi = math.Max(hi, p.Price)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	c.Coords = make([]Coord, n)
	for i, p := range points {
		x := 1.0
		if n > 1 {
			x = float64(i)/float64(n-1)*(width-2) + 1
		}
		y := height - 1 - (p.Price-lo)/rng*(height-2)
		c.Coords[i] = Coord{X: x, Y: y}
	}
	return c
}

func (c Chart) Empty() bool { return len(c.Coords) == 0 }

// Up reports last >= first; ties count as up.
func (c Chart) Up() bool {
	if len(c.Points) == 0 {
		return false
	}
	return c.Points[len(c.Points)-1].Price >= c.Points[0].Price
}

// Path is the SVG line path through every coordinate.
func (c Chart) Path() string {
	var b strings.Builder
	for i, xy := range c.Coords {
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(strconv.FormatFloat(xy.X, 'f', 2, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(xy.Y, 'f', 2, 64))
	}
	return b.String()
}

// AreaPath closes the line path along the bottom edge for the gradient fill.
func (c Chart) AreaPath() string {
	if c.Empty() {
		return ""
	}
	bottom := num(c.Height - 1)
	return c.Path() + " L " + num(c.Width-1) + " " + bottom + " L 1 " + bottom + " Z"
}

// NearestIndex maps a pointer x offset to the index of the closest sample.
// It returns -1 for an empty chart.
func (c Chart) NearestIndex(x float64) int {
	n := len(c.Coords)
	if n == 0 {
		return -1
	}
	x = clamp(x, 1, c.Width-1)
	ratio := clamp((x-1)/(c.Width-2), 0, 1)
	return int(math.Round(ratio * float64(n-1)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
