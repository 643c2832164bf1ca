package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoeeEidan/Chain-Prices/internal/ingest"
)

type fakeCycle struct {
	runs     atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	err      error
}

func (f *fakeCycle) Run(ctx context.Context) (ingest.Report, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	f.runs.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return ingest.Report{RunID: "r", Written: 1}, f.err
}

type fakePruner struct {
	mu     sync.Mutex
	before []int64
}

func (p *fakePruner) Prune(_ context.Context, beforeMs int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.before = append(p.before, beforeMs)
	return 3, nil
}

func TestIngestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	cycle := &fakeCycle{}
	s := NewIngestScheduler(cycle, nil, IngestSchedulerConfig{Interval: 20 * time.Millisecond})

	s.Start()
	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return cycle.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.Running())

	n := cycle.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, cycle.runs.Load(), "no cycles after Stop")
}

func TestIngestScheduler_StartTwiceIsNoop(t *testing.T) {
	cycle := &fakeCycle{}
	s := NewIngestScheduler(cycle, nil, IngestSchedulerConfig{Interval: time.Hour})
	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return cycle.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), cycle.runs.Load())
}

func TestIngestScheduler_RunNowDoesNotOverlap(t *testing.T) {
	cycle := &fakeCycle{delay: 30 * time.Millisecond}
	s := NewIngestScheduler(cycle, nil, IngestSchedulerConfig{Interval: 10 * time.Millisecond})
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunNow(context.Background())
		}()
	}
	wg.Wait()
	assert.False(t, cycle.overlap.Load())
}

func TestIngestScheduler_Retention(t *testing.T) {
	now := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	var reports []ingest.Report
	s := NewIngestScheduler(&fakeCycle{}, pruner, IngestSchedulerConfig{
		Interval:  time.Hour,
		Retention: 30 * 24 * time.Hour,
		Now:       func() time.Time { return now },
		OnReport:  func(r ingest.Report) { reports = append(reports, r) },
	})

	rep, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)
	require.Len(t, reports, 1)
	require.Len(t, pruner.before, 1)
	assert.Equal(t, now.Add(-30*24*time.Hour).UnixMilli(), pruner.before[0])
}

func TestIngestScheduler_NoRetentionSkipsPrune(t *testing.T) {
	pruner := &fakePruner{}
	s := NewIngestScheduler(&fakeCycle{}, pruner, IngestSchedulerConfig{Interval: time.Hour})
	_, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pruner.before)
}

func TestIngestScheduler_CycleError(t *testing.T) {
	pruner := &fakePruner{}
	s := NewIngestScheduler(&fakeCycle{err: context.DeadlineExceeded}, pruner, IngestSchedulerConfig{
		Interval:  time.Hour,
		Retention: time.Hour,
	})
	_, err := s.RunNow(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, pruner.before, "no prune after a failed cycle")
}

func TestIngestScheduler_RunBlocksUntilCancel(t *testing.T) {
	cycle := &fakeCycle{}
	s := NewIngestScheduler(cycle, nil, IngestSchedulerConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return cycle.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, s.Running())
}
