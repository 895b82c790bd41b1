package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEnricher struct {
	mu      sync.Mutex
	calls   map[string]int
	block   chan struct{}
	enrichF func(ctx context.Context, id string) error
}

func newRecordingEnricher() *recordingEnricher {
	return &recordingEnricher{calls: make(map[string]int)}
}

func (e *recordingEnricher) Enrich(ctx context.Context, id string) error {
	e.mu.Lock()
	e.calls[id]++
	e.mu.Unlock()
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.enrichF != nil {
		return e.enrichF(ctx, id)
	}
	return nil
}

func (e *recordingEnricher) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

func TestEnrichmentPool_ProcessesQueuedClaims(t *testing.T) {
	enricher := newRecordingEnricher()
	pool := NewEnrichmentPool(EnrichmentPoolConfig{Workers: 3, QueueSize: 10}, enricher, zap.NewNop())

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.True(t, pool.Enqueue(id))
	}

	assert.Eventually(t, func() bool {
		processed, _ := pool.Stats()
		return processed == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, enricher.count("c"))
}

func TestEnrichmentPool_DeduplicatesInflight(t *testing.T) {
	enricher := newRecordingEnricher()
	enricher.block = make(chan struct{})
	pool := NewEnrichmentPool(EnrichmentPoolConfig{Workers: 1, QueueSize: 10}, enricher, zap.NewNop())

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	assert.True(t, pool.Enqueue("a"))
	assert.Eventually(t, func() bool { return enricher.count("a") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, pool.Enqueue("a"), "duplicate is accepted but not queued again")

	close(enricher.block)
	assert.Eventually(t, func() bool {
		processed, _ := pool.Stats()
		return processed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, enricher.count("a"))

	assert.True(t, pool.Enqueue("a"), "finished claims may be queued again")
	assert.Eventually(t, func() bool { return enricher.count("a") == 2 }, time.Second, 5*time.Millisecond)
}

func TestEnrichmentPool_FullQueueRejects(t *testing.T) {
	pool := NewEnrichmentPool(EnrichmentPoolConfig{Workers: 1, QueueSize: 2}, newRecordingEnricher(), zap.NewNop())

	// Not started, so nothing drains.
	assert.True(t, pool.Enqueue("a"))
	assert.True(t, pool.Enqueue("b"))
	assert.False(t, pool.Enqueue("c"))
}

func TestEnrichmentPool_PanicAndErrorDoNotKillWorkers(t *testing.T) {
	enricher := newRecordingEnricher()
	enricher.enrichF = func(ctx context.Context, id string) error {
		switch id {
		case "panic":
			panic("boom")
		case "err":
			return errors.New("db down")
		}
		return nil
	}
	pool := NewEnrichmentPool(EnrichmentPoolConfig{Workers: 1, QueueSize: 10}, enricher, zap.NewNop())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	pool.Enqueue("panic")
	pool.Enqueue("err")
	pool.Enqueue("ok")

	assert.Eventually(t, func() bool {
		processed, failed := pool.Stats()
		return processed == 1 && failed == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEnrichmentPool_StopCancelsInflight(t *testing.T) {
	enricher := newRecordingEnricher()
	enricher.block = make(chan struct{})
	pool := NewEnrichmentPool(EnrichmentPoolConfig{Workers: 1, QueueSize: 10}, enricher, zap.NewNop())
	require.NoError(t, pool.Start(context.Background()))

	pool.Enqueue("a")
	assert.Eventually(t, func() bool { return enricher.count("a") == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, pool.Enqueue("b"))
	assert.Error(t, pool.Start(context.Background()))
}

type fakeLister struct {
	mu     sync.Mutex
	ids    []string
	cutoff time.Time
	err    error
}

func (f *fakeLister) ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

type sliceQueue struct {
	mu       sync.Mutex
	ids      []string
	capacity int
}

func (q *sliceQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.ids) >= q.capacity {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

func (q *sliceQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func TestEnrichmentSweeper_Sweep(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{ids: []string{"a", "b", "c"}}
	queue := &sliceQueue{capacity: 2}

	sweeper := NewEnrichmentSweeper(SweeperConfig{Interval: time.Hour, StaleAfter: 5 * time.Minute, BatchSize: 10}, lister, queue, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	accepted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, accepted, "stops at the first rejection")
	assert.Equal(t, []string{"a", "b"}, queue.ids)
	assert.Equal(t, now.Add(-5*time.Minute), lister.cutoff)
}

func TestEnrichmentSweeper_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("locked")}
	sweeper := NewEnrichmentSweeper(DefaultSweeperConfig(), lister, &sliceQueue{}, zap.NewNop())

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestEnrichmentSweeper_SweepsOnStart(t *testing.T) {
	lister := &fakeLister{ids: []string{"a"}}
	queue := &sliceQueue{}
	sweeper := NewEnrichmentSweeper(SweeperConfig{Interval: time.Hour, StaleAfter: time.Minute, BatchSize: 10}, lister, queue, zap.NewNop())

	require.NoError(t, sweeper.Start(context.Background()))
	assert.Eventually(t, func() bool { return queue.len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sweeper.Stop())

	at, err := sweeper.LastSweep()
	assert.False(t, at.IsZero())
	assert.NoError(t, err)
}

type stubWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *stubWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start "+w.name)
	return nil
}

func (w *stubWorker) Stop() error {
	*w.log = append(*w.log, "stop "+w.name)
	return nil
}

func (w *stubWorker) Name() string { return w.name }

func TestWorkerManager_StopsInReverseOrder(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&stubWorker{name: "pool", log: &log})
	m.Register(&stubWorker{name: "sweeper", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start pool", "start sweeper", "stop sweeper", "stop pool"}, log)
}

func TestWorkerManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&stubWorker{name: "pool", log: &log})
	m.Register(&stubWorker{name: "sweeper", log: &log, startErr: errors.New("nope")})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start pool", "stop pool"}, log)
	assert.Equal(t, 2, m.GetWorkerCount())
}
