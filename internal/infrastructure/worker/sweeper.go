package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"go.uber.org/zap"
)

var _ Worker = (*EnrichmentSweeper)(nil)

// StaleClaimLister finds claims whose enrichment never completed
type StaleClaimLister interface {
	ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// SweeperConfig holds configuration for the enrichment sweeper
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   time.Minute,
		StaleAfter: 5 * time.Minute,
		BatchSize:  50,
	}
}

// EnrichmentSweeper re-enqueues claims still pending enrichment well after
// submission: queue overflow, crashes and shutdowns all leave such claims behind.
type EnrichmentSweeper struct {
	config SweeperConfig
	claims StaleClaimLister
	queue  port.EnrichmentQueue
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	lastSweep time.Time
	lastError error
}

// NewEnrichmentSweeper creates a new sweeper
func NewEnrichmentSweeper(config SweeperConfig, claims StaleClaimLister, queue port.EnrichmentQueue, logger *zap.Logger) *EnrichmentSweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &EnrichmentSweeper{
		config: config,
		claims: claims,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Start sweeps once immediately, then on every interval
func (s *EnrichmentSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("enrichment sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("EnrichmentSweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("stale_after", s.config.StaleAfter),
		zap.Int("batch_size", s.config.BatchSize))

	go s.pollLoop(runCtx, s.done)
	return nil
}

// Stop terminates the sweeper and waits for the loop to exit
func (s *EnrichmentSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("EnrichmentSweeper stopped")
	return nil
}

// Name returns the worker name for identification
func (s *EnrichmentSweeper) Name() string {
	return "EnrichmentSweeper"
}

func (s *EnrichmentSweeper) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.sweepAndRecord(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweeper loop context cancelled")
			return
		case <-ticker.C:
			s.sweepAndRecord(ctx)
		}
	}
}

func (s *EnrichmentSweeper) sweepAndRecord(ctx context.Context) {
	_, err := s.Sweep(ctx)
	s.mu.Lock()
	s.lastSweep = s.now()
	s.lastError = err
	s.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Enrichment sweep failed", zap.Error(err))
	}
}

// Sweep enqueues one batch of stale claims and returns how many were accepted
func (s *EnrichmentSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.config.StaleAfter)
	ids, err := s.claims.ListStaleEnrichment(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale enrichment: %w", err)
	}

	accepted := 0
	for _, id := range ids {
		if !s.queue.Enqueue(id) {
			// Queue is full; the rest wait for the next tick.
			break
		}
		accepted++
	}

	if len(ids) > 0 {
		s.logger.Info("Re-enqueued stale enrichment",
			zap.Int("found", len(ids)),
			zap.Int("accepted", accepted))
	}
	return accepted, nil
}

// LastSweep returns when the last sweep ran and its error
func (s *EnrichmentSweeper) LastSweep() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastError
}
