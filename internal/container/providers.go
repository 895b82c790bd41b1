package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/application/dispatcher"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/application/service"
	"github.com/haulwise/rebate-claims/internal/config"
	"github.com/haulwise/rebate-claims/internal/domain/rule"
	infraLark "github.com/haulwise/rebate-claims/internal/infrastructure/external/lark"
	"github.com/haulwise/rebate-claims/internal/infrastructure/external/openai"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/repository"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/sqlite"
	"github.com/haulwise/rebate-claims/internal/infrastructure/storage"
	"github.com/haulwise/rebate-claims/internal/infrastructure/worker"
	"github.com/haulwise/rebate-claims/migrations"
	"github.com/haulwise/rebate-claims/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the document-analysis and review-channel clients.
type ExternalBundle struct {
	Analyzer port.DocumentAnalyzer
	Notifier port.ReviewNotifier
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Claims:     repository.NewClaimRepository(db.DB, logger),
		Jobs:       repository.NewJobRepository(db.DB, logger),
		Facilities: repository.NewFacilityRepository(db.DB, logger),
	}, nil
}

// ProvideExternalClients creates the OpenAI analyzer and the review notifier.
// With lark disabled alerts are only logged.
func ProvideExternalClients(openAICfg *config.OpenAIConfig, larkCfg *config.LarkConfig, logger *zap.Logger) (*ExternalBundle, error) {
	prompts, err := openai.LoadPrompts(openAICfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	analyzer := openai.NewAnalyzer(openai.Config{
		APIKey:      openAICfg.APIKey,
		BaseURL:     openAICfg.BaseURL,
		Model:       openAICfg.Model,
		Temperature: openAICfg.Temperature,
		MaxTokens:   openAICfg.MaxTokens,
	}, prompts, logger)

	var notifier port.ReviewNotifier = infraLark.NoopNotifier{Logger: logger}
	if larkCfg.Enabled {
		sdk := infraLark.NewSDKClient(infraLark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
		}, logger)
		notifier = infraLark.NewReviewNotifier(sdk, larkCfg.ReviewChatID, logger)
	}

	return &ExternalBundle{Analyzer: analyzer, Notifier: notifier}, nil
}

// ProvideReceiptStore creates the receipt image loader rooted at the configured directory.
func ProvideReceiptStore(cfg *config.StorageConfig, logger *zap.Logger) (port.ReceiptStore, error) {
	if cfg.ReceiptDir == "" {
		return nil, fmt.Errorf("storage.receipt_dir is required")
	}
	return storage.NewReceiptStore(cfg.ReceiptDir, cfg.MaxImageBytes, cfg.PDFDPI, logger), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Receipts   port.ReceiptStore
	Dispatcher dispatcher.Dispatcher
	Rebate     *config.RebateConfig
	Enrichment *config.EnrichmentConfig
	Logger     *zap.Logger
}

// ProvideServices creates the application services together with the
// enrichment pool that links them, and subscribes the review alerts.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, *worker.EnrichmentPool, error) {
	if deps == nil || deps.Repos == nil {
		return nil, nil, fmt.Errorf("service dependencies are required")
	}

	validator := rule.NewValidator(deps.Rebate.Policy())

	enrichment := service.NewEnrichmentService(service.EnrichmentServiceDeps{
		Claims:    deps.Repos.Claims,
		Jobs:      deps.Repos.Jobs,
		Store:     deps.Receipts,
		Analyzer:  deps.External.Analyzer,
		Validator: validator,
		Retry: service.RetryStrategy{
			MaxAttempts: deps.Enrichment.MaxAttempts,
			BaseBackoff: deps.Enrichment.BaseBackoff,
			MaxBackoff:  deps.Enrichment.MaxBackoff,
			Jitter:      true,
		},
		Timeout: deps.Enrichment.Timeout,
		Events:  deps.Dispatcher,
		Logger:  deps.Logger,
	})

	pool := worker.NewEnrichmentPool(worker.EnrichmentPoolConfig{
		Workers:   deps.Enrichment.Workers,
		QueueSize: deps.Enrichment.QueueSize,
	}, enrichment, deps.Logger)

	claims := service.NewClaimService(service.ClaimServiceDeps{
		Claims:       deps.Repos.Claims,
		Jobs:         deps.Repos.Jobs,
		Facilities:   deps.Repos.Facilities,
		Transactions: deps.TxManager,
		Validator:    validator,
		Queue:        pool,
		Events:       deps.Dispatcher,
		Logger:       deps.Logger,
	})

	alerts := service.NewReviewAlertService(deps.Repos.Claims, deps.External.Notifier, deps.Logger)
	alerts.Register(deps.Dispatcher)

	return &ServiceBundle{
		Claims:       claims,
		Enrichment:   enrichment,
		ReviewAlerts: alerts,
	}, pool, nil
}

// ProvideWorkers registers the enrichment pool and the stale-claim sweeper.
// The pool is registered first so it stops last.
func ProvideWorkers(pool *worker.EnrichmentPool, claims worker.StaleClaimLister, cfg *config.EnrichmentConfig, logger *zap.Logger) (*worker.WorkerManager, *worker.EnrichmentSweeper) {
	sweeper := worker.NewEnrichmentSweeper(worker.SweeperConfig{
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.StaleAfter,
		BatchSize:  cfg.SweepBatch,
	}, claims, pool, logger)

	manager := worker.NewWorkerManager(logger)
	manager.Register(pool)
	manager.Register(sweeper)
	return manager, sweeper
}
