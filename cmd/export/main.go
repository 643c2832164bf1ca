// Command export dumps the last N days of every catalog series to a Parquet
// file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/app"
	"github.com/RoeeEidan/Chain-Prices/internal/config"
	"github.com/RoeeEidan/Chain-Prices/internal/export"
	"github.com/RoeeEidan/Chain-Prices/internal/series"
)

func main() {
	days := flag.Int("days", 7, "window size in days")
	out := flag.String("out", "prices.parquet", "output file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateReadOnly(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *days, *out); err != nil {
		log.Errorf("export: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, days int, out string) error {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	q := series.NewQuery(cfg.Catalog, store,
		series.WithPageSize(cfg.QueryPageSize),
		series.WithTimeout(cfg.StoreTimeout),
	)
	all, err := q.Window(ctx, days)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.Err != nil {
			log.WithField("asset", s.ID).Warnf("skipped: %v", s.Err)
		}
	}

	n, err := export.WriteParquet(out, all)
	if err != nil {
		return err
	}
	log.Infof("wrote %d points for %d assets to %s", n, len(all), out)
	return nil
}
