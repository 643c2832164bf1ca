package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/ingest"
	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
)

// Cycle runs one ingestion pass. *ingest.Task implements it.
type Cycle interface {
	Run(ctx context.Context) (ingest.Report, error)
}

// Pruner removes points older than a cutoff. Every series store implements it.
type Pruner interface {
	Prune(ctx context.Context, beforeMs int64) (int64, error)
}

type IngestSchedulerConfig struct {
	Interval     time.Duration // e.g. 1*time.Minute
	CycleTimeout time.Duration
	Retention    time.Duration // 0 keeps points forever
	OnReport     func(ingest.Report)
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// IngestScheduler runs the ingestion cycle at a fixed rate. Cycles never
// overlap: ticks and manual runs share one lock.
type IngestScheduler struct {
	cycle  Cycle
	pruner Pruner
	cfg    IngestSchedulerConfig
	log    *log.Entry

	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewIngestScheduler(cycle Cycle, pruner Pruner, cfg IngestSchedulerConfig) *IngestScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CycleTimeout <= 0 || cfg.CycleTimeout > cfg.Interval {
		cfg.CycleTimeout = cfg.Interval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &IngestScheduler{
		cycle:  cycle,
		pruner: pruner,
		cfg:    cfg,
		log:    log.WithField("component", "ingest-scheduler"),
	}
}

func (s *IngestScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.tick()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	s.log.Infof("started (every %s, retention %s)", s.cfg.Interval, retentionLabel(s.cfg.Retention))
}

// Stop halts the ticker and waits for an in-flight cycle to finish.
func (s *IngestScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info("stopped")
}

func (s *IngestScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run starts the scheduler and blocks until ctx is done.
func (s *IngestScheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// RunNow triggers a cycle outside the normal schedule, waiting for any
// in-flight cycle first.
func (s *IngestScheduler) RunNow(ctx context.Context) (ingest.Report, error) {
	s.log.Info("manual ingestion triggered")
	return s.runCycle(ctx)
}

func (s *IngestScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()
	if _, err := s.runCycle(ctx); err != nil {
		s.log.Errorf("cycle failed: %v", err)
	}
}

func (s *IngestScheduler) runCycle(ctx context.Context) (ingest.Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	rep, err := s.cycle.Run(ctx)
	if err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IngestRuns.WithLabelValues("error").Inc()
		}
		return rep, fmt.Errorf("ingest: %w", err)
	}
	if s.cfg.OnReport != nil {
		s.cfg.OnReport(rep)
	}
	s.prune(ctx)
	return rep, nil
}

func (s *IngestScheduler) prune(ctx context.Context) {
	if s.cfg.Retention <= 0 || s.pruner == nil {
		return
	}
	before := s.cfg.Now().Add(-s.cfg.Retention).UnixMilli()
	n, err := s.pruner.Prune(ctx, before)
	if err != nil {
		s.log.Warnf("prune failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("pruned %d points older than %s", n, time.UnixMilli(before).UTC().Format(time.RFC3339))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.PrunedPoints.Add(float64(n))
		}
	}
}

func retentionLabel(d time.Duration) string {
	if d <= 0 {
		return "unbounded"
	}
	return d.String()
}
