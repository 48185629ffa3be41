package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aiwf/engine/common/config"
	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/logger"
	"github.com/aiwf/engine/common/queue"
)

// Setup initializes all service components.
// This is the main entry point for both the api and worker services.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize broker (Redis client + stream queue)
	if !options.skipBroker {
		components.Logger.Info("connecting to broker", "addr", components.Config.RedisAddr())

		components.Redis = redis.NewClient(&redis.Options{
			Addr:     components.Config.RedisAddr(),
			Password: components.Config.Broker.RedisPassword,
			DB:       components.Config.Broker.RedisDB,
		})
		if err := components.Redis.Ping(ctx).Err(); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to ping broker: %w", err)
		}

		components.addCleanup(func() error {
			return components.Redis.Close()
		})

		components.Queue = queue.NewRedisStreamQueue(
			components.Redis,
			components.Logger,
			components.Config.Broker.MaxRetries,
			components.Config.Broker.MaxMessageAge,
		)
		components.addCleanup(func() error {
			return components.Queue.Close()
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"broker", components.Queue != nil,
	)

	return components, nil
}
