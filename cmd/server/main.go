package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/oklog/run"
	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/api"
	"github.com/RoeeEidan/Chain-Prices/internal/app"
	"github.com/RoeeEidan/Chain-Prices/internal/config"
	"github.com/RoeeEidan/Chain-Prices/internal/ingest"
	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
	"github.com/RoeeEidan/Chain-Prices/internal/publish"
	"github.com/RoeeEidan/Chain-Prices/internal/scheduler"
	"github.com/RoeeEidan/Chain-Prices/internal/series"
)

const banner = `
╔══════════════════════════════════════╗
║        Chain Prices Server v1.0      ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

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
	cfg.Print()

	if err := serve(cfg); err != nil {
		log.Errorf("exit: %v", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func serve(cfg *config.Config) error {
	ctx := context.Background()

	// Store
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New("")

	// Live stream
	hub := publish.NewHub(cfg.CORSAllowOrigin)
	hub.RestrictTo(cfg.Catalog)
	hub.OnClientCount(func(n int) { m.StreamClients.Set(float64(n)) })

	// Ingestion
	pipeline, err := app.NewPipeline(ctx, cfg, store, m, hub)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	sched := scheduler.NewIngestScheduler(pipeline.Task, store, scheduler.IngestSchedulerConfig{
		Interval:     cfg.IngestInterval,
		CycleTimeout: cfg.IngestInterval,
		Retention:    cfg.Retention(),
		Metrics:      m,
		OnReport: func(r ingest.Report) {
			if r.Failed+r.Invalid+r.Dropped > 0 {
				log.WithField("run", r.RunID).Warnf("cycle incomplete: %d/%d written", r.Written, r.Attempted)
			}
		},
	})

	// API
	query := series.NewQuery(cfg.Catalog, store,
		series.WithPageSize(cfg.QueryPageSize),
		series.WithTimeout(cfg.StoreTimeout),
		series.WithMetrics(m),
	)
	srv := api.NewServer(store, query, api.ServerConfig{
		Port:        cfg.APIPort,
		CORSOrigin:  cfg.CORSAllowOrigin,
		DefaultDays: cfg.DefaultDays,
		Precision:   cfg.PricePrecision,
		Hub:         hub,
		Metrics:     m,
	})

	group := app.NewApp().
		WithSignals(ctx, syscall.SIGINT, syscall.SIGTERM).
		WithService(sched).
		WithService(hub).
		WithService(app.ServiceFunc(func(ctx context.Context) error {
			if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}))
	if store.Maintenance != nil {
		group.WithService(store.Maintenance)
	}

	log.Info("all services started")

	err = group.Run(ctx)
	var sig run.SignalError
	if errors.As(err, &sig) || errors.Is(err, context.Canceled) {
		log.Infof("shutting down: %v", err)
		return nil
	}
	return err
}
