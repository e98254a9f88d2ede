// Package app wires every adapter and core pipeline package together
// into the dependency graph the CLI and worker entry points drive.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gcssync/gcs/internal/adapters/caldavclient"
	"github.com/gcssync/gcs/internal/adapters/icsfetch"
	"github.com/gcssync/gcs/internal/adapters/oracle"
	"github.com/gcssync/gcs/internal/adapters/schedulerfile"
	"github.com/gcssync/gcs/internal/adapters/statefile"
	"github.com/gcssync/gcs/internal/adapters/statesql"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/store"
	"github.com/gcssync/gcs/internal/shared/infrastructure/eventbus"
	"github.com/gcssync/gcs/internal/shared/infrastructure/outbox"
	"github.com/gcssync/gcs/pkg/config"
	"github.com/gcssync/gcs/pkg/observability"
)

// Container holds every long-lived collaborator the pipeline needs,
// built once at process start and passed down into the plan/apply/
// adopt/export orchestration functions in ingest.go and pipeline.go.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics

	Store store.Backend

	ICSFetch  *icsfetch.Fetcher
	CalDAV    *caldavclient.Client
	Scheduler SchedulerIO

	Holiday intent.HolidayResolver
	Solar   intent.SolarOracle

	EventBus        eventbus.Publisher
	OutboxRepo      outbox.Repository
	OutboxProcessor *outbox.Processor

	redisClient   *redis.Client
	pluginOracle  *oracle.PluginOracle
	statesqlStore *statesql.Store
}

// SchedulerIO is the seam ingest.go and pipeline.go use for the
// scheduler-side flat-file adapter, satisfied by *schedulerfile.Reader
// plus *schedulerfile.Writer together.
type SchedulerIO struct {
	Reader *schedulerfile.Reader
	Writer *schedulerfile.Writer
}

// NewContainer builds a Container from cfg. Callers must call Close
// when done to release the Redis client, plugin subprocess, and
// statesql database handle, if any were opened.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logCfg := observability.DefaultLogConfig()
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	logCfg.Level = observability.LogLevel(cfg.LogLevel)
	logger := observability.NewLogger(logCfg)

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
	}

	backend, err := c.buildStateBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: building state backend: %w", err)
	}
	c.Store = backend

	c.ICSFetch = icsfetch.NewWithBreaker(cfg.ICSFetchTimeout, breakerConfig(cfg))

	caldav := caldavclient.New(cfg.CalDAVBaseURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
	if cfg.CalDAVCalendarPath != "" {
		caldav = caldav.WithCalendarPath(cfg.CalDAVCalendarPath)
	}
	c.CalDAV = caldav.WithBreaker(caldavBreakerConfig(cfg))

	schedulerFilePath := filepath.Join(cfg.SchedulerStateDir, schedulerfile.DefaultFileName)
	c.Scheduler = SchedulerIO{
		Reader: schedulerfile.NewReader(schedulerFilePath),
		Writer: schedulerfile.NewWriter(schedulerFilePath),
	}

	if err := c.buildOracles(logger); err != nil {
		return nil, fmt.Errorf("app: building oracles: %w", err)
	}

	c.buildEventBus(logger)

	return c, nil
}

// NewDevelopmentContainer wires a Container suited to local iteration:
// file-backed state, built-in oracles, no event bus.
func NewDevelopmentContainer(ctx context.Context, stateDir, schedulerDir string) (*Container, error) {
	cfg := &config.Config{
		AppEnv:                 "development",
		LogLevel:               "debug",
		StateBackend:           "file",
		StateDir:               stateDir,
		SchedulerStateDir:      schedulerDir,
		SyncMode:               "both",
		TieBreakWinner:         "scheduler",
		HorizonDays:            90,
		SchedulerCalendarScope: "primary",
	}
	return NewContainer(ctx, cfg)
}

func (c *Container) buildStateBackend(ctx context.Context) (store.Backend, error) {
	if c.Config.UsesSQLiteState() {
		s, err := statesql.Open(ctx, c.Config.StateDatabaseURL)
		if err != nil {
			return nil, err
		}
		c.statesqlStore = s
		return s, nil
	}
	return statefile.New(c.Config.StateDir), nil
}

func (c *Container) buildOracles(logger *slog.Logger) error {
	if c.Config.OraclePluginPath != "" {
		p, err := oracle.LoadPluginOracle(c.Config.OraclePluginPath, logger)
		if err != nil {
			return err
		}
		c.pluginOracle = p
		c.Holiday = p.Holidays()
		c.Solar = p.Solar()
		return nil
	}

	var holiday intent.HolidayResolver = oracle.NewFixedHolidayTable()
	if c.Config.OracleCacheURL != "" {
		client := redis.NewClient(&redis.Options{Addr: c.Config.OracleCacheURL})
		c.redisClient = client
		holiday = oracle.NewCachedHolidayResolver(context.Background(), client, holiday)
	}
	c.Holiday = holiday
	c.Solar = oracle.NewSolarCalculator()
	return nil
}

func (c *Container) buildEventBus(logger *slog.Logger) {
	if !c.Config.EventBusEnabled {
		c.EventBus = eventbus.NewNoopPublisher(logger)
		return
	}

	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq publisher unavailable, falling back to in-process bus", "error", err)
		bus := eventbus.NewInProcessEventBus(logger)
		c.EventBus = eventbus.NewInProcessPublisher(bus, logger)
	} else {
		c.EventBus = publisher
	}

	repo := outbox.NewInMemoryRepository()
	c.OutboxRepo = repo
	c.OutboxProcessor = outbox.NewProcessor(repo, c.EventBus, outbox.DefaultProcessorConfig(), logger)
}

func breakerConfig(cfg *config.Config) icsfetch.BreakerConfig {
	return icsfetch.BreakerConfig{
		Enabled:      cfg.CircuitBreakerEnabled,
		MaxRequests:  cfg.CircuitBreakerMaxRequests,
		OpenTimeout:  cfg.CircuitBreakerOpenTimeout,
		FailureRatio: cfg.CircuitBreakerFailureRatio,
	}
}

func caldavBreakerConfig(cfg *config.Config) caldavclient.BreakerConfig {
	return caldavclient.BreakerConfig{
		Enabled:      cfg.CircuitBreakerEnabled,
		MaxRequests:  cfg.CircuitBreakerMaxRequests,
		OpenTimeout:  cfg.CircuitBreakerOpenTimeout,
		FailureRatio: cfg.CircuitBreakerFailureRatio,
	}
}

// Close releases every resource NewContainer opened. Safe to call on
// a Container that opened none of them.
func (c *Container) Close() error {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.pluginOracle != nil {
		c.pluginOracle.Close()
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			return err
		}
	}
	if c.statesqlStore != nil {
		return c.statesqlStore.Close()
	}
	return nil
}

// Now returns the wall-clock time a Container's orchestration
// functions stamp generated manifests with. A method rather than a
// bare time.Now() call so tests can swap in a fixed clock later
// without touching every call site.
func (c *Container) Now() time.Time {
	return time.Now().UTC()
}
