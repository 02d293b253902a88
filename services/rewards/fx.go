package rewards

import (
	"context"
	"time"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/task"
	"miniapp-rewards/pkg/taskname"

	"github.com/benbjohnson/clock"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const loadTimeout = 10 * time.Second

var Module = fx.Module("rewards.service",
	fx.Provide(
		provideMetrics,
		provideStorage,
		providePublisher,
		provideStore,
		NewSignal,
		provideTrigger,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// Worker consumes rewards:task_verified into the Ledger. It needs the
// asynq server module.
var Worker = fx.Module("rewards.worker",
	fx.Provide(NewLedger),
	fx.Invoke(registerWorker),
)

func provideMetrics(reg *prometheus.Registry) *Metrics {
	return NewMetrics(reg)
}

func provideStorage(cfg *config.Config, kv kvstore.Store) Storage {
	return NewKVStorage(kv, cfg.Storage.Profile)
}

type publisherParams struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer `optional:"true"`
}

func providePublisher(p publisherParams) Publisher {
	if !p.Config.Queue.Enable || p.Enqueuer == nil {
		return NopPublisher{}
	}
	return NewQueuePublisher(p.Enqueuer, p.Config.Storage.Profile)
}

type storeParams struct {
	fx.In
	Config    *config.Config
	Storage   Storage
	Clock     clock.Clock
	Publisher Publisher
	Metrics   *Metrics
}

func provideStore(p storeParams) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	return NewStore(ctx, StoreOptions{
		Storage: p.Storage,
		Catalog: CatalogFromConfig(p.Config.Catalog),
		Clock:   p.Clock,
		Policy: Policy{
			Cooldown:    p.Config.Rewards.Cooldown,
			MaxAttempts: p.Config.Rewards.MaxAttempts,
		},
		Publisher: p.Publisher,
		Metrics:   p.Metrics,
	})
}

type triggerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Store     *Store
	Signal    *Signal
	Clock     clock.Clock
	Node      *snowflake.Node
	Metrics   *Metrics
	Launcher  Launcher `optional:"true"`
	Notifier  Notifier `optional:"true"`
}

func provideTrigger(p triggerParams) (*Trigger, error) {
	policy := p.Store.Policy()
	tr, err := NewTrigger(TriggerParams{
		Claimer:  p.Store,
		Signal:   p.Signal,
		Launcher: p.Launcher,
		Notifier: p.Notifier,
		Clock:    p.Clock,
		Node:     p.Node,
		Metrics:  p.Metrics,
		Config: TriggerConfig{
			Cooldown:      policy.Cooldown,
			MaxAttempts:   policy.MaxAttempts,
			VerifyBuffer:  p.Config.Rewards.VerifyBuffer,
			SettleDelay:   p.Config.Rewards.SettleDelay,
			ListenCeiling: p.Config.Rewards.ListenCeiling,
		},
	})
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			tr.Close()
			return nil
		},
	})
	return tr, nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func registerWorker(mux *asynq.ServeMux, l *Ledger) {
	mux.HandleFunc(taskname.RewardsTaskVerified, l.HandleTaskVerified)
	zap.L().Info("registered rewards worker", zap.String("task_type", taskname.RewardsTaskVerified))
}
