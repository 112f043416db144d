package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/notification"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Activity
	activity    port.ActivityStore
	redisClient *redis.Client

	// Application
	evaluator  *threshold.Evaluator
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	sender     notification.Sender

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Request      port.RequestRepository
	Item         port.ItemRepository
	History      port.HistoryRepository
	Sequence     port.SequenceRepository
	Combined     port.CombinedRequestRepository
	Idea         port.IdeaRepository
	Vote         port.VoteRepository
	Audit        *repository.AuditLogRepository
	Notification port.NotificationRepository
	Directory    port.Directory
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Request     service.RequestService
	Combination service.CombinationService
	Idea        service.IdeaService
	Workflow    workflow.RequestEngine
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

// Option customizes a container before Start.
type Option func(*Container)

// WithSender replaces the notification delivery channel.
func WithSender(s notification.Sender) Option {
	return func(c *Container) {
		c.sender = s
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Activity store
// 3. Event dispatcher and side-effect handlers
// 4. Application services and workflow engine
// 5. Workers
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

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize activity store
	if err := c.initActivity(); err != nil {
		return fmt.Errorf("failed to initialize activity store: %w", err)
	}
	c.logger.Info("Activity store initialized")

	// Step 3: Initialize dispatcher and handlers
	if err := c.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
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

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher so pending side effects finish (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.closeDispatcher(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close redis (reverse of step 2)
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}

	// Step 4: Close database (reverse of step 1)
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
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

// closeDispatcher waits for in-flight handlers up to the configured timeout.
func (c *Container) closeDispatcher() error {
	timeout := c.config.Dispatcher.CloseTimeout
	if timeout <= 0 {
		return c.dispatcher.Close()
	}

	done := make(chan error, 1)
	go func() { done <- c.dispatcher.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("event handlers still running after %s", timeout)
	}
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	report := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	report("database", probe(c.sqlDB != nil, func() error { return c.sqlDB.Ping() }))

	// redis is only reported when it backs the activity store
	if c.redisClient != nil {
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		report("redis", probe(true, func() error { return c.redisClient.Ping(ctx).Err() }))
	}

	if c.workers != nil {
		report("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	} else {
		report("workers", notInitialized)
	}

	report("dispatcher", probe(c.dispatcher != nil, nil))
	report("repositories", probe(c.repositories != nil, nil))

	return status
}

var notInitialized = ComponentHealth{Healthy: false, Message: "not initialized"}

// probe reports a component as unhealthy when it is missing or ping fails
func probe(initialized bool, ping func() error) ComponentHealth {
	if !initialized {
		return notInitialized
	}
	if ping != nil {
		if err := ping(); err != nil {
			return ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		}
	}
	return ComponentHealth{Healthy: true}
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initActivity initializes the last-seen store.
func (c *Container) initActivity() error {
	bundle, err := ProvideActivityStore(c.ctx, &c.config.Activity, c.logger)
	if err != nil {
		return err
	}
	c.activity = bundle.Store
	c.redisClient = bundle.RedisClient
	return nil
}

// initDispatcher creates the dispatcher and subscribes side-effect handlers.
func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	return RegisterHandlers(&HandlerDeps{
		Repos:      c.repositories,
		Dispatcher: c.dispatcher,
		Sender:     c.sender,
		Logger:     c.logger,
	})
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	c.evaluator = ProvideEvaluator(&c.config.Thresholds)

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Evaluator:  c.evaluator,
		Exporter:   ProvideExporter(&c.config.Export, c.logger),
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.activity, &c.config.Activity, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Directory returns the user and department directory.
func (c *Container) Directory() port.Directory {
	return c.repositories.Directory
}

// ActivityStore returns the last-seen store.
func (c *Container) ActivityStore() port.ActivityStore {
	return c.activity
}

// Evaluator returns the threshold evaluator.
func (c *Container) Evaluator() *threshold.Evaluator {
	return c.evaluator
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
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
