package dashboard

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed dashboard.html
var pageHTML string

var page = template.Must(template.New("dashboard").Parse(pageHTML))

type Page struct {
	Title       string
	WindowLabel string
	Rows        []Row
	GeneratedAt string
}

func NewPage(rows []Row, windowDays int, now time.Time) Page {
	return Page{
		Title:       "On-chain Prices",
		WindowLabel: fmt.Sprintf("%dd", windowDays),
		Rows:        rows,
		GeneratedAt: now.UTC().Format(time.RFC1123),
	}
}

func Render(w io.Writer, p Page) error {
	if err := page.Execute(w, p); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}
