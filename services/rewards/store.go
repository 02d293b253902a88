package rewards

import (
	"context"
	"sync"

	"miniapp-rewards/pkg/errutil"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "miniapp-rewards/services/rewards"

// Store owns the task states and user stats. Start and Verify are the only
// mutations; each one is flushed to Storage before it becomes visible.
type Store struct {
	mu sync.Mutex

	storage   Storage
	clock     clock.Clock
	policy    Policy
	publisher Publisher
	metrics   *Metrics
	tracer    trace.Tracer

	tasks []Task
	index map[string]int
	stats UserStats
}

type StoreOptions struct {
	Storage   Storage
	Catalog   []Definition
	Clock     clock.Clock
	Policy    Policy
	Publisher Publisher
	Metrics   *Metrics
}

// NewStore validates the catalog, loads persisted state and merges the two.
// Stats that drifted from the verified tasks are recomputed and saved.
func NewStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	if opts.Storage == nil {
		return nil, errutil.Internal("rewards store requires a storage", nil)
	}
	if err := ValidateCatalog(opts.Catalog); err != nil {
		return nil, err
	}

	s := &Store{
		storage:   opts.Storage,
		clock:     opts.Clock,
		policy:    opts.Policy,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer(tracerName),
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.policy == (Policy{}) {
		s.policy = DefaultPolicy
	}
	if s.publisher == nil {
		s.publisher = NopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	snap, err := s.storage.Load(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to load rewards state", err)
	}

	s.tasks = Merge(opts.Catalog, snap.Tasks)
	s.index = make(map[string]int, len(s.tasks))
	for i, t := range s.tasks {
		s.index[t.ID] = i
	}

	s.stats = snap.Stats
	drifted := !Consistent(s.tasks, s.stats)
	if drifted {
		zap.L().Warn("rewards stats drifted from verified tasks, recomputing",
			zap.Int64("persisted_coins", s.stats.TotalCoins),
			zap.Int("persisted_completed", s.stats.TasksCompleted),
		)
		s.stats = Aggregate(s.tasks, s.stats)
	}

	if snap.Fresh || drifted {
		if err := s.storage.Save(ctx, s.snapshot()); err != nil {
			return nil, errutil.Internal("failed to save rewards state", err)
		}
	}

	zap.L().Info("rewards store loaded",
		zap.Int("tasks", len(s.tasks)),
		zap.Int64("total_coins", s.stats.TotalCoins),
		zap.Bool("fresh", snap.Fresh),
	)
	return s, nil
}

func (s *Store) Policy() Policy {
	return s.policy
}

func (s *Store) Clock() clock.Clock {
	return s.clock
}

func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.clone()
	}
	return out
}

func (s *Store) Task(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Task{}, taskNotFound(id)
	}
	return s.tasks[i].clone(), nil
}

func (s *Store) Stats() UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start begins a new attempt on task id. Starting a completed task is a
// no-op. Start does not enforce the cooldown; callers that want it must
// check LastAttempt themselves.
func (s *Store) Start(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "rewards.Start", trace.WithAttributes(attribute.String("task_id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return taskNotFound(id)
	}

	t := s.tasks[i].clone()
	if t.Completed {
		zap.L().Debug("start ignored, task already completed", zap.String("task_id", id))
		return nil
	}

	now := s.clock.Now()
	t.StartTime = millis(now)
	t.VerificationStatus = StatusPending
	t.Attempts++
	t.LastAttempt = millis(now)

	if err := s.commit(ctx, i, t, s.stats); err != nil {
		span.RecordError(err)
		return err
	}

	s.metrics.starts.Inc()
	zap.L().Info("task attempt started", zap.String("task_id", id), zap.Int("attempts", t.Attempts))
	return nil
}

// Verify asks the policy whether the in-flight attempt on task id is
// honoured. It returns true when the task is (or already was) verified.
// Rejections are not errors: errors mean an unknown id or a storage failure.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	verified, event, err := s.Settle(ctx, id)
	if err != nil {
		return false, err
	}
	s.Publish(ctx, event)
	return verified, nil
}

// Settle applies and persists one verification like Verify, but returns the
// task verified event instead of publishing it. event is nil unless this
// call verified the task.
func (s *Store) Settle(ctx context.Context, id string) (verified bool, event *TaskVerifiedPayload, err error) {
	ctx, span := s.tracer.Start(ctx, "rewards.Verify", trace.WithAttributes(attribute.String("task_id", id)))
	defer span.End()

	verified, event, err = s.verify(ctx, id)
	if err != nil {
		span.RecordError(err)
		return false, nil, err
	}
	span.SetAttributes(attribute.Bool("verified", verified))
	return verified, event, nil
}

// Publish hands a settled event to the publisher. Failures are logged; the
// verification stays committed.
func (s *Store) Publish(ctx context.Context, event *TaskVerifiedPayload) {
	if event == nil {
		return
	}
	if err := s.publisher.PublishTaskVerified(ctx, *event); err != nil {
		zap.L().Warn("failed to publish task verified event", zap.String("task_id", event.TaskID), zap.Error(err))
	}
}

func (s *Store) verify(ctx context.Context, id string) (bool, *TaskVerifiedPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, nil, taskNotFound(id)
	}

	t := s.tasks[i].clone()
	now := s.clock.Now()
	d := s.policy.Decide(t, now)
	s.metrics.decisions.WithLabelValues(d.Outcome.String(), string(d.Reason)).Inc()

	log := zap.L().With(
		zap.String("task_id", id),
		zap.String("reason", string(d.Reason)),
		zap.Int("attempts", t.Attempts),
	)

	if d.Outcome == OutcomeSuppressed {
		log.Debug("verification suppressed")
		return t.Completed, nil, nil
	}

	t.VerificationStatus = StatusVerifying
	if err := s.commit(ctx, i, t, s.stats); err != nil {
		return false, nil, err
	}

	t = t.clone()
	t.LastDecision = millis(now)

	if d.Outcome == OutcomeRejected {
		t.VerificationStatus = StatusFailed
		if err := s.commit(ctx, i, t, s.stats); err != nil {
			return false, nil, err
		}
		log.Info("verification rejected", zap.Bool("blocked", t.Blocked(s.policy.MaxAttempts)))
		return false, nil, nil
	}

	t.VerificationStatus = StatusVerified
	t.Completed = true
	stats := s.stats.award(t.Reward)
	if err := s.commit(ctx, i, t, stats); err != nil {
		return false, nil, err
	}

	s.metrics.coinsAwarded.Add(float64(t.Reward))
	log.Info("task verified",
		zap.Int64("reward", t.Reward),
		zap.Int64("total_coins", stats.TotalCoins),
		zap.Int("level", stats.Level),
	)

	return true, &TaskVerifiedPayload{
		TaskID:         t.ID,
		Platform:       t.Platform,
		Reward:         t.Reward,
		TotalCoins:     stats.TotalCoins,
		TasksCompleted: stats.TasksCompleted,
		VerifiedAt:     now.UTC(),
	}, nil
}

// commit saves the state with tasks[i] replaced by t, and only then makes
// it visible. A failed save leaves memory untouched.
func (s *Store) commit(ctx context.Context, i int, t Task, stats UserStats) error {
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	tasks[i] = t

	if err := s.storage.Save(ctx, Snapshot{Stats: stats, Tasks: tasks}); err != nil {
		s.metrics.storageErrors.Inc()
		zap.L().Error("failed to save rewards state", zap.String("task_id", t.ID), zap.Error(err))
		return errutil.Internal("failed to save rewards state", err)
	}

	s.tasks = tasks
	s.stats = stats
	return nil
}

func (s *Store) snapshot() Snapshot {
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	return Snapshot{Stats: s.stats, Tasks: tasks}
}

func taskNotFound(id string) error {
	return errutil.NotFound("task not found", nil, errutil.WithDetails(errutil.Detail{Field: "task_id", Message: id}))
}
