package task

import (
	"context"
	"fmt"

	"miniapp-rewards/pkg/config"

	"github.com/hibiken/asynq"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuerImpl struct {
	client *asynq.Client
	queue  string
}

// NewEnqueuer creates an Enqueuer that routes tasks to QUEUE.NAME unless the
// caller overrides the queue.
func NewEnqueuer(client *asynq.Client, cfg *config.Config) Enqueuer {
	return &enqueuerImpl{client: client, queue: cfg.Queue.Name}
}

func (e *enqueuerImpl) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.queue != "" {
		opts = append([]asynq.Option{asynq.Queue(e.queue)}, opts...)
	}
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task %s: %w", task.Type(), err)
	}
	return info, nil
}
