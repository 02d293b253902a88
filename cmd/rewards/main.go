package main

import (
	"log"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/db"
	"miniapp-rewards/pkg/gen"
	"miniapp-rewards/pkg/health"
	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/logger"
	"miniapp-rewards/pkg/otelcol"
	"miniapp-rewards/pkg/profiling"
	"miniapp-rewards/pkg/redis"
	"miniapp-rewards/pkg/server"
	"miniapp-rewards/pkg/task"
	"miniapp-rewards/services/rewards"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	opts := []fx.Option{
		fx.Supply(cfg),
		logger.Module,
		fx.Provide(provideClock),
		gen.Module,
		kvstore.Module,
		health.Module,
		rewards.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}
	opts = append(opts, backendModules(cfg)...)

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// backendModules wires only the connections the configured storage driver,
// queue, tracing and profiling need.
func backendModules(cfg *config.Config) []fx.Option {
	var opts []fx.Option

	if cfg.Storage.Driver == kvstore.DriverDatabase {
		opts = append(opts, db.Module)
	}
	if cfg.Storage.Driver == kvstore.DriverRedis {
		opts = append(opts, redis.Module)
	}
	if cfg.Otel.Enable {
		opts = append(opts, otelcol.Module)
	}
	if cfg.Pyroscope.Enable {
		opts = append(opts, profiling.Module)
	}
	if cfg.Queue.Enable {
		opts = append(opts,
			task.Client,
			task.Server,
			rewards.Worker,
		)
	}
	return opts
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})

func provideClock() clock.Clock {
	return clock.New()
}
