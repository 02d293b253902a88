package task

import (
	"context"

	"miniapp-rewards/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server runs an asynq worker over QUEUE.NAME. Handlers are registered on
// the provided *asynq.ServeMux.
var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux, registerAsynqServer),
	fx.Invoke(runServerMux),
)

func registerServerMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func registerAsynqServer(cfg *config.Config) *asynq.Server {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    concurrency,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				cfg.Queue.Name: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("asynq task failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)
}

func runServerMux(lc fx.Lifecycle, server *asynq.Server, mux *asynq.ServeMux) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Start returns once the workers are running.
			if err := server.Start(mux); err != nil {
				zap.L().Error("[Asynq] Failed to start Asynq server", zap.Error(err))
				return err
			}
			zap.L().Info("[Asynq] Asynq server started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
