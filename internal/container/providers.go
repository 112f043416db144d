package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/activity"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/export"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/notification"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/worker"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ActivityBundle holds the activity store and, when Redis backs it, the client.
type ActivityBundle struct {
	Store       port.ActivityStore
	RedisClient *redis.Client
}

// ProvideDatabase opens the database, runs pending migrations and wraps the
// connection in a transaction manager.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
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

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Request:      repository.NewRequestRepository(sqlDB, logger),
		Item:         repository.NewItemRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Sequence:     repository.NewSequenceRepository(sqlDB, logger),
		Combined:     repository.NewCombinedRequestRepository(sqlDB, logger),
		Idea:         repository.NewIdeaRepository(sqlDB, logger),
		Vote:         repository.NewVoteRepository(sqlDB, logger),
		Audit:        repository.NewAuditLogRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		Directory:    repository.NewDirectoryRepository(sqlDB, logger),
	}, nil
}

// ProvideEvaluator builds the threshold evaluator from configuration.
func ProvideEvaluator(cfg *ThresholdConfig) *threshold.Evaluator {
	return threshold.New(threshold.Config{
		Works:             cfg.Works,
		GoodsServices:     cfg.GoodsServices,
		ReferenceCurrency: cfg.ReferenceCurrency,
	})
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create dispatcher logger adapter
	dispatcherLogger := &dispatcherLoggerAdapter{logger: logger}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	), nil
}

// HandlerDeps holds dependencies for the side-effect handlers.
type HandlerDeps struct {
	Repos      *RepositoryBundle
	Dispatcher dispatcher.Dispatcher
	Sender     notification.Sender
	Logger     *zap.Logger
}

// RegisterHandlers subscribes the audit trail and threshold alerts to the
// dispatcher. A nil Sender falls back to logging deliveries.
func RegisterHandlers(deps *HandlerDeps) error {
	if deps == nil || deps.Repos == nil || deps.Dispatcher == nil {
		return fmt.Errorf("handler dependencies are required")
	}
	if deps.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	sender := deps.Sender
	if sender == nil {
		sender = notification.NewLogSender(deps.Logger)
	}
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	notifier := notification.NewThresholdNotifier(
		deps.Repos.Directory,
		deps.Repos.Notification,
		sender,
		time.Now,
		deps.Logger,
	)

	service.NewAuditTrail(deps.Repos.Audit, serviceLogger).Register(deps.Dispatcher)
	service.NewThresholdAlerts(notifier, deps.Repos.Directory, serviceLogger).Register(deps.Dispatcher)
	return nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Evaluator  *threshold.Evaluator
	Exporter   port.LotExporter
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services and the workflow engine.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create logger adapter for services
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	return &ServiceBundle{
		Request: service.NewRequestService(
			repos.Request,
			repos.Item,
			repos.History,
			repos.Sequence,
			repos.Directory,
			deps.TxManager,
			deps.Dispatcher,
			time.Now,
			serviceLogger,
		),
		Combination: service.NewCombinationService(
			repos.Request,
			repos.Item,
			repos.History,
			repos.Combined,
			deps.TxManager,
			deps.Evaluator,
			deps.Exporter,
			deps.Dispatcher,
			time.Now,
			serviceLogger,
		),
		Idea: service.NewIdeaService(
			repos.Idea,
			repos.Vote,
			deps.TxManager,
			deps.Dispatcher,
			time.Now,
			serviceLogger,
		),
		Workflow: workflow.NewEngine(
			repos.Request,
			repos.Item,
			repos.History,
			repos.Directory,
			deps.TxManager,
			deps.Evaluator,
			workflow.WithDispatcher(deps.Dispatcher),
			workflow.WithLogger(serviceLogger),
		),
	}, nil
}

// ProvideExporter creates the lot schedule writer.
func ProvideExporter(cfg *ExportConfig, logger *zap.Logger) port.LotExporter {
	return export.NewLotScheduleWriter(cfg.SheetName, logger)
}

// ProvideActivityStore returns a Redis-backed store when enabled, otherwise
// an in-memory one.
func ProvideActivityStore(ctx context.Context, cfg *ActivityConfig, logger *zap.Logger) (*ActivityBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("activity config is required")
	}
	if !cfg.RedisEnabled {
		logger.Info("Using in-memory activity store")
		return &ActivityBundle{Store: activity.NewMemoryStore()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Using redis activity store", zap.String("addr", cfg.RedisAddr))
	return &ActivityBundle{
		Store:       activity.NewRedisStore(client, cfg.KeyPrefix, logger),
		RedisClient: client,
	}, nil
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(store port.ActivityStore, cfg *ActivityConfig, logger *zap.Logger) (*worker.WorkerManager, error) {
	if store == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)
	manager.Register(worker.NewActivitySweeper(store, cfg.TTL, cfg.SweepInterval, logger))
	return manager, nil
}
