// Package container provides dependency injection and lifecycle management
// for the rebate claim service.
package container

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/application/service"
	"github.com/haulwise/rebate-claims/internal/config"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/sqlite"
	"github.com/haulwise/rebate-claims/internal/infrastructure/worker"
	"github.com/haulwise/rebate-claims/pkg/database"
)

// Container owns every long-lived component. Start initializes them in
// dependency order and Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txm          *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	external *ExternalBundle
	receipts port.ReceiptStore

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	pool    *worker.EnrichmentPool
	sweeper *worker.EnrichmentSweeper
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Claims     port.ClaimRepository
	Jobs       port.JobRepository
	Facilities port.FacilityRegistry
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Claims       service.ClaimService
	Enrichment   service.EnrichmentService
	ReviewAlerts service.ReviewAlertService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (OpenAI, Lark)
// 3. Receipt storage
// 4. Event dispatcher
// 5. Application services
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize external clients: %w", err))
	}
	c.logger.Info("External clients initialized", zap.Bool("lark_enabled", c.config.Lark.Enabled))

	if err := c.initStorage(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize storage: %w", err))
	}
	c.logger.Info("Storage initialized", zap.String("receipt_dir", c.config.Storage.ReceiptDir))

	c.dispatcher = dispatcher.NewDispatcher(c.logger)

	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.GetWorkerCount()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases what a failed Start already opened
func (c *Container) abort(err error) error {
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.cancel()
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Stop the sweeper, then drain the pool
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Wait for in-flight review alerts
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.db.PingContext(ctx); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers == nil {
		set("workers", ComponentHealth{Message: "not initialized"})
	} else {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	}

	if c.pool != nil {
		processed, failed := c.pool.Stats()
		set("enrichment", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("processed: %d, failed: %d", processed, failed),
		})
	}

	if c.sweeper != nil {
		at, err := c.sweeper.LastSweep()
		switch {
		case at.IsZero():
			set("sweeper", ComponentHealth{Healthy: true, Message: "no sweep yet"})
		case err != nil:
			set("sweeper", ComponentHealth{Message: fmt.Sprintf("last sweep at %s failed: %v", at.Format(time.RFC3339), err)})
		default:
			set("sweeper", ComponentHealth{Healthy: true, Message: "last sweep at " + at.Format(time.RFC3339)})
		}
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = dbBundle.DB
	c.txm = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.db.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternalClients() error {
	external, err := ProvideExternalClients(&c.config.OpenAI, &c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.external = external
	return nil
}

func (c *Container) initStorage() error {
	if err := os.MkdirAll(c.config.Storage.ReceiptDir, 0o755); err != nil {
		return fmt.Errorf("create receipt directory: %w", err)
	}
	receipts, err := ProvideReceiptStore(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.receipts = receipts
	return nil
}

func (c *Container) initServices() error {
	services, pool, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txm,
		External:   c.external,
		Receipts:   c.receipts,
		Dispatcher: c.dispatcher,
		Rebate:     &c.config.Rebate,
		Enrichment: &c.config.Enrichment,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	c.pool = pool
	return nil
}

func (c *Container) initWorkers() error {
	c.workers, c.sweeper = ProvideWorkers(c.pool, c.repositories.Claims, &c.config.Enrichment, c.logger)

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// DB returns the database handle.
func (c *Container) DB() *database.DB {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
