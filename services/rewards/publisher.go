package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"miniapp-rewards/pkg/task"
	"miniapp-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
)

// TaskVerifiedPayload is published once per accepted verification.
type TaskVerifiedPayload struct {
	Profile        string    `json:"profile"`
	TaskID         string    `json:"task_id"`
	Platform       Platform  `json:"platform"`
	Reward         int64     `json:"reward"`
	TotalCoins     int64     `json:"total_coins"`
	TasksCompleted int       `json:"tasks_completed"`
	VerifiedAt     time.Time `json:"verified_at"`
}

type Publisher interface {
	PublishTaskVerified(ctx context.Context, p TaskVerifiedPayload) error
}

type NopPublisher struct{}

func (NopPublisher) PublishTaskVerified(context.Context, TaskVerifiedPayload) error { return nil }

type QueuePublisher struct {
	enqueuer task.Enqueuer
	profile  string
}

func NewQueuePublisher(e task.Enqueuer, profile string) *QueuePublisher {
	return &QueuePublisher{enqueuer: e, profile: profile}
}

func (q *QueuePublisher) PublishTaskVerified(ctx context.Context, p TaskVerifiedPayload) error {
	p.Profile = q.profile
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// A task is verified at most once per profile, so the pair is a stable
	// dedup key for the queue.
	_, err = q.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.RewardsTaskVerified, payload),
		asynq.TaskID(taskname.RewardsTaskVerified+":"+q.profile+":"+p.TaskID),
		asynq.MaxRetry(10),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
