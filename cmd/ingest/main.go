// Command ingest runs a single ingestion cycle and exits, for cron or
// serverless schedulers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/app"
	"github.com/RoeeEidan/Chain-Prices/internal/config"
	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.IngestInterval)
	defer cancel()

	if err := once(ctx, cfg); err != nil {
		log.Errorf("ingest: %v", err)
		os.Exit(1)
	}
}

func once(ctx context.Context, cfg *config.Config) error {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline, err := app.NewPipeline(ctx, cfg, store, metrics.New(""))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if _, err := pipeline.Task.Run(ctx); err != nil {
		// Cancelled mid-cycle; whatever was written stays written.
		log.Warnf("cycle interrupted: %v", err)
		return nil
	}

	if cfg.RetentionDays > 0 {
		before := time.Now().Add(-cfg.Retention()).UnixMilli()
		if n, err := store.Prune(ctx, before); err != nil {
			log.Warnf("prune: %v", err)
		} else if n > 0 {
			log.Infof("pruned %d points", n)
		}
	}
	return nil
}
