package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"go.uber.org/zap"
)

var (
	_ Worker               = (*EnrichmentPool)(nil)
	_ port.EnrichmentQueue = (*EnrichmentPool)(nil)
)

// Enricher processes one claim; implemented by service.EnrichmentService
type Enricher interface {
	Enrich(ctx context.Context, claimID string) error
}

// EnrichmentPoolConfig holds configuration for the enrichment pool
type EnrichmentPoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultEnrichmentPoolConfig returns default configuration
func DefaultEnrichmentPoolConfig() EnrichmentPoolConfig {
	return EnrichmentPoolConfig{
		Workers:   4,
		QueueSize: 256,
	}
}

// EnrichmentPool is a bounded queue of claim ids drained by a fixed number of
// goroutines. An id already queued or in progress is not queued twice.
type EnrichmentPool struct {
	config   EnrichmentPoolConfig
	enricher Enricher
	logger   *zap.Logger

	queue chan string
	wg    sync.WaitGroup

	mu             sync.Mutex
	inflight       map[string]struct{}
	cancel         context.CancelFunc
	isRunning      bool
	stopped        bool
	processedCount int
	failedCount    int
}

// NewEnrichmentPool creates a new enrichment pool
func NewEnrichmentPool(config EnrichmentPoolConfig, enricher Enricher, logger *zap.Logger) *EnrichmentPool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	return &EnrichmentPool{
		config:   config,
		enricher: enricher,
		logger:   logger,
		queue:    make(chan string, config.QueueSize),
		inflight: make(map[string]struct{}),
	}
}

// Enqueue adds a claim id without blocking. It returns false when the queue is
// full or the pool has stopped; the sweeper picks such claims up later.
func (p *EnrichmentPool) Enqueue(claimID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	if _, ok := p.inflight[claimID]; ok {
		return true
	}

	select {
	case p.queue <- claimID:
		p.inflight[claimID] = struct{}{}
		return true
	default:
		p.logger.Warn("Enrichment queue full", zap.String("claim_id", claimID), zap.Int("capacity", cap(p.queue)))
		return false
	}
}

// Start launches the worker goroutines
func (p *EnrichmentPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("enrichment pool already running")
	}
	if p.stopped {
		return fmt.Errorf("enrichment pool cannot be restarted")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.isRunning = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(runCtx, i)
	}

	p.logger.Info("EnrichmentPool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
	return nil
}

// Stop cancels in-flight enrichment and waits for the workers to exit.
// Queued and interrupted claims stay pending in the database.
func (p *EnrichmentPool) Stop() error {
	p.mu.Lock()
	p.stopped = true
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("EnrichmentPool stopped",
		zap.Int("processed_count", p.processedCount),
		zap.Int("failed_count", p.failedCount),
		zap.Int("abandoned", len(p.queue)))
	return nil
}

// Name returns the worker name for identification
func (p *EnrichmentPool) Name() string {
	return "EnrichmentPool"
}

// Stats returns processed and failed counts
func (p *EnrichmentPool) Stats() (processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processedCount, p.failedCount
}

func (p *EnrichmentPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case claimID := <-p.queue:
			if ctx.Err() != nil {
				return
			}
			p.process(ctx, id, claimID)
		}
	}
}

func (p *EnrichmentPool) process(ctx context.Context, workerID int, claimID string) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		p.mu.Lock()
		delete(p.inflight, claimID)
		if err != nil {
			p.failedCount++
		} else {
			p.processedCount++
		}
		p.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			p.logger.Error("Enrichment failed",
				zap.Int("worker", workerID),
				zap.String("claim_id", claimID),
				zap.Error(err))
		}
	}()

	err = p.enricher.Enrich(ctx, claimID)
}
