package sparkline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultPrecision = 6
	MaxPrecision     = 8
)

var ten = decimal.NewFromInt(10)

// Formatter renders prices. Precision is the number of decimals allowed for
// magnitudes below $10.
type Formatter struct {
	Precision int
}

func NewFormatter(precision int) Formatter {
	if precision < 2 {
		precision = DefaultPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	return Formatter{Precision: precision}
}

// USD formats with exactly 2 decimals at or above $10, otherwise between 2
// and Precision decimals with trailing zeros trimmed.
func (f Formatter) USD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	d := decimal.NewFromFloat(v)
	abs := d.Abs()

	places := int32(2)
	if abs.LessThan(ten) && f.Precision > 2 {
		places = int32(f.Precision)
	}
	s := abs.StringFixed(places)

	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")
	for len(frac) < 2 {
		frac += "0"
	}

	sign := ""
	if d.Sign() < 0 && strings.Trim(whole+frac, "0") != "" {
		sign = "-"
	}
	return sign + "$" + groupThousands(whole) + "." + frac
}

func FormatUSD(v float64) string { return Formatter{Precision: DefaultPrecision}.USD(v) }

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatPct renders a signed percentage with 2 decimals; values that round
// to zero print as 0.00%.
func FormatPct(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case s == "0.00" || s == "-0.00":
		return "0.00%"
	case v > 0:
		return "+" + s + "%"
	default:
		return s + "%"
	}
}

// TimeAgo renders the time elapsed since tsMs. Future timestamps clamp to
// zero and read as "just now".
func TimeAgo(tsMs int64, now time.Time) string {
	ms := now.UnixMilli() - tsMs
	if ms < 1000 {
		return "just now"
	}
	s := ms / 1000
	if s < 60 {
		return fmt.Sprintf("%ds ago", s)
	}
	m := s / 60
	if m < 60 {
		return fmt.Sprintf("%dm ago", m)
	}
	return fmt.Sprintf("%dh ago", m/60)
}

// FormatTooltipTime renders a point time for the hover tooltip, in UTC.
func FormatTooltipTime(tsMs int64) string {
	return time.UnixMilli(tsMs).UTC().Format("Jan 02, 15:04")
}
