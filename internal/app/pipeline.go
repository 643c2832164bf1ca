package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/config"
	"github.com/RoeeEidan/Chain-Prices/internal/ethereum"
	"github.com/RoeeEidan/Chain-Prices/internal/ingest"
	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
	"github.com/RoeeEidan/Chain-Prices/internal/publish"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
)

// Pipeline owns the chain client and the sinks behind an ingestion task.
type Pipeline struct {
	Task    *ingest.Task
	closers []func()
}

// NewPipeline dials the RPC endpoint and assembles the ingestion task with
// the sinks enabled in cfg plus any extra ones.
func NewPipeline(ctx context.Context, cfg *config.Config, store repository.SeriesStore, m *metrics.Metrics, extra ...ingest.Sink) (*Pipeline, error) {
	logger := log.WithField("component", "pipeline")
	p := &Pipeline{}

	client, err := ethereum.NewClient(ctx, cfg.RPCURL, cfg.RPCTimeout)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, client.Close)

	if id, err := client.ChainID(ctx); err != nil {
		logger.Warnf("chain id: %v", err)
	} else {
		logger.Infof("connected to chain %s", id.String())
	}

	feeds, err := ethereum.NewFeedReader(client, cfg.RPCTimeout)
	if err != nil {
		p.Close()
		return nil, err
	}

	sinks := append([]ingest.Sink(nil), extra...)
	if len(cfg.KafkaBrokers) > 0 {
		k, err := publish.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		p.closers = append(p.closers, func() {
			if err := k.Close(); err != nil {
				logger.Warnf("kafka close: %v", err)
			}
		})
		sinks = append(sinks, k)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, publish.NewWebhookSink(cfg.WebhookURL, ""))
	}

	p.Task = ingest.New(cfg.Catalog, feeds, store,
		ingest.WithSinks(sinks...),
		ingest.WithMetrics(m),
		ingest.WithStoreTimeout(cfg.StoreTimeout),
	)
	return p, nil
}

// Close releases resources in reverse order of creation.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
