package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"miniapp-rewards/pkg/errutil"

	"github.com/benbjohnson/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Claimer is the part of the Store the trigger drives. Settle commits a
// verification; Publish emits its event and may block on the broker, so
// the trigger calls it without holding its own lock.
type Claimer interface {
	Task(id string) (Task, error)
	Start(ctx context.Context, id string) error
	Settle(ctx context.Context, id string) (bool, *TaskVerifiedPayload, error)
	Publish(ctx context.Context, event *TaskVerifiedPayload)
}

type TriggerConfig struct {
	Cooldown    time.Duration
	MaxAttempts int
	// VerifyBuffer is added to the task's minimum time before the timer
	// path verifies.
	VerifyBuffer time.Duration
	// SettleDelay is waited after the return signal before verifying.
	SettleDelay time.Duration
	// ListenCeiling bounds how long an attempt listens for the return signal.
	ListenCeiling time.Duration
}

var DefaultTriggerConfig = TriggerConfig{
	Cooldown:      DefaultPolicy.Cooldown,
	MaxAttempts:   DefaultPolicy.MaxAttempts,
	VerifyBuffer:  2 * time.Second,
	SettleDelay:   time.Second,
	ListenCeiling: 60 * time.Second,
}

// Path tells how an attempt was resolved.
type Path string

const (
	PathTimer     Path = "timer"
	PathReturn    Path = "return"
	PathGuard     Path = "guard"
	PathStale     Path = "stale"
	PathCancelled Path = "cancelled"
)

type Result struct {
	Path     Path
	Verified bool
	Notice   Notice
	Err      error
}

// Attempt is one engagement with a task. It resolves exactly once.
type Attempt struct {
	ID        snowflake.ID
	TaskID    string
	StartedAt time.Time
	// Notice is what the user was shown when the attempt began.
	Notice Notice

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	result Result
}

func newAttempt(id snowflake.ID, taskID string, startedAt time.Time, cancel context.CancelFunc) *Attempt {
	if cancel == nil {
		cancel = func() {}
	}
	return &Attempt{
		ID:        id,
		TaskID:    taskID,
		StartedAt: startedAt,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Result returns the outcome and true once the attempt has resolved.
func (a *Attempt) Result() (Result, bool) {
	select {
	case <-a.done:
		return a.result, true
	default:
		return Result{}, false
	}
}

func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
		return a.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (a *Attempt) resolve(r Result) bool {
	resolved := false
	a.once.Do(func() {
		a.result = r
		close(a.done)
		resolved = true
	})
	return resolved
}

type TriggerParams struct {
	Claimer  Claimer
	Signal   *Signal
	Launcher Launcher
	Notifier Notifier
	Clock    clock.Clock
	Node     *snowflake.Node
	Metrics  *Metrics
	Config   TriggerConfig
}

// Trigger runs claim attempts: it starts the task, opens its URL and then
// verifies once, on whichever of the deferred timer or the return signal
// comes first.
type Trigger struct {
	claimer  Claimer
	signal   *Signal
	launcher Launcher
	notifier Notifier
	clock    clock.Clock
	node     *snowflake.Node
	metrics  *Metrics
	cfg      TriggerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders engagements against verifications so a superseded attempt
	// can never verify.
	mu     sync.Mutex
	active *Attempt
	closed bool
}

func NewTrigger(p TriggerParams) (*Trigger, error) {
	if p.Claimer == nil {
		return nil, errutil.Internal("trigger requires a claimer", nil)
	}

	tr := &Trigger{
		claimer:  p.Claimer,
		signal:   p.Signal,
		launcher: p.Launcher,
		notifier: p.Notifier,
		clock:    p.Clock,
		node:     p.Node,
		metrics:  p.Metrics,
		cfg:      p.Config,
	}
	if tr.signal == nil {
		tr.signal = NewSignal()
	}
	if tr.launcher == nil {
		tr.launcher = LogLauncher{}
	}
	if tr.notifier == nil {
		tr.notifier = LogNotifier{}
	}
	if tr.clock == nil {
		tr.clock = clock.New()
	}
	if tr.metrics == nil {
		tr.metrics = NewMetrics(nil)
	}
	if tr.cfg == (TriggerConfig{}) {
		tr.cfg = DefaultTriggerConfig
	}
	if tr.node == nil {
		node, err := snowflake.NewNode(0)
		if err != nil {
			return nil, err
		}
		tr.node = node
	}

	tr.ctx, tr.cancel = context.WithCancel(context.Background())
	return tr, nil
}

func (tr *Trigger) Signal() *Signal {
	return tr.signal
}

// Current returns the most recent attempt that passed its guards, resolved
// or not. It is nil before the first one.
func (tr *Trigger) Current() *Attempt {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.active
}

// Engage starts a claim attempt on task id. A task that is completed,
// blocked or inside its cooldown gets a notice and an already resolved
// attempt; the store is not touched. Otherwise the previous attempt, if
// still pending, is cancelled.
func (tr *Trigger) Engage(ctx context.Context, id string) (*Attempt, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return nil, errutil.Unavailable("trigger is closed", nil)
	}

	// Read under mu so concurrent engagements see each other's Start.
	t, err := tr.claimer.Task(id)
	if err != nil {
		return nil, err
	}

	now := tr.clock.Now()
	if notice, blocked := tr.guard(t, now); blocked {
		a := newAttempt(tr.node.Generate(), id, now, nil)
		a.Notice = notice
		tr.notifier.Notify(ctx, notice)
		a.resolve(Result{Path: PathGuard, Notice: notice})
		tr.metrics.engagements.WithLabelValues(string(PathGuard)).Inc()
		zap.L().Info("engagement guarded", zap.String("task_id", id), zap.String("notice", string(notice.Kind)))
		return a, nil
	}

	if err := tr.claimer.Start(ctx, id); err != nil {
		return nil, err
	}

	if tr.active != nil {
		tr.active.cancel()
	}

	attemptCtx, cancel := context.WithCancel(tr.ctx)
	a := newAttempt(tr.node.Generate(), id, now, cancel)
	tr.active = a

	timer := tr.clock.Timer(t.MinimumDuration() + tr.cfg.VerifyBuffer)
	ceiling := tr.clock.Timer(tr.cfg.ListenCeiling)
	returned, unsubscribe := tr.signal.Subscribe()

	a.Notice = Notice{
		Kind:     NoticeInProgress,
		TaskID:   id,
		Reward:   t.Reward,
		Attempts: t.Attempts + 1,
		Text:     fmt.Sprintf("Complete the task on %s and come back", t.Platform),
	}
	tr.launcher.Open(ctx, t.URL)
	tr.notifier.Notify(ctx, a.Notice)

	zap.L().Info("engagement started",
		zap.String("task_id", id),
		zap.String("attempt_id", a.ID.String()),
	)

	tr.wg.Add(1)
	go tr.run(attemptCtx, a, timer, ceiling, returned, unsubscribe)
	return a, nil
}

func (tr *Trigger) guard(t Task, now time.Time) (Notice, bool) {
	n := Notice{TaskID: t.ID, Reward: t.Reward, Attempts: t.Attempts}
	switch {
	case t.Completed:
		n.Kind = NoticeAlreadyCompleted
		n.Text = "Task already completed"
	case t.Blocked(tr.cfg.MaxAttempts):
		n.Kind = NoticeBlocked
		n.Text = fmt.Sprintf("Task blocked after %d attempts", t.Attempts)
	case t.LastAttempt != nil && now.UnixMilli()-*t.LastAttempt < tr.cfg.Cooldown.Milliseconds():
		n.Kind = NoticeCooldown
		n.Text = "Please wait before trying again"
	default:
		return Notice{}, false
	}
	return n, true
}

func (tr *Trigger) run(
	ctx context.Context,
	a *Attempt,
	timer, ceiling *clock.Timer,
	returned <-chan struct{},
	unsubscribe func(),
) {
	defer tr.wg.Done()
	defer unsubscribe()
	defer timer.Stop()
	defer ceiling.Stop()

	log := zap.L().With(zap.String("task_id", a.TaskID), zap.String("attempt_id", a.ID.String()))

	for {
		select {
		case <-ctx.Done():
			tr.finish(a, Result{Path: PathCancelled})
			return

		case <-ceiling.C:
			unsubscribe()
			returned = nil
			log.Debug("stopped listening for return signal")

		case <-timer.C:
			tr.verify(ctx, a, PathTimer)
			return

		case <-returned:
			timer.Stop()
			unsubscribe()

			settle := tr.clock.Timer(tr.cfg.SettleDelay)
			tr.notifier.Notify(ctx, Notice{Kind: NoticeChecking, TaskID: a.TaskID, Text: "Checking task completion"})

			select {
			case <-ctx.Done():
				settle.Stop()
				tr.finish(a, Result{Path: PathCancelled})
				return
			case <-settle.C:
			}

			tr.verify(ctx, a, PathReturn)
			return
		}
	}
}

// verify performs the single verification of a, provided a is still the
// active attempt.
func (tr *Trigger) verify(ctx context.Context, a *Attempt, path Path) {
	tr.mu.Lock()
	if tr.active != a || ctx.Err() != nil {
		tr.mu.Unlock()
		tr.finish(a, Result{Path: PathStale})
		return
	}

	verified, event, err := tr.claimer.Settle(ctx, a.TaskID)
	tr.mu.Unlock()

	// The event belongs to a committed verification; a later cancel of the
	// attempt must not drop it.
	tr.claimer.Publish(context.WithoutCancel(ctx), event)

	r := Result{Path: path, Verified: verified, Err: err}
	if err != nil {
		r.Notice = Notice{Kind: NoticeError, TaskID: a.TaskID, Text: "Could not verify the task, try again"}
		zap.L().Error("verification failed", zap.String("task_id", a.TaskID), zap.Error(err))
	} else {
		t, terr := tr.claimer.Task(a.TaskID)
		if terr != nil {
			r.Err = terr
			r.Notice = Notice{Kind: NoticeError, TaskID: a.TaskID, Text: "Could not verify the task, try again"}
		} else {
			r.Notice = tr.outcome(t, verified)
		}
	}

	tr.notifier.Notify(ctx, r.Notice)
	tr.finish(a, r)
}

func (tr *Trigger) outcome(t Task, verified bool) Notice {
	n := Notice{TaskID: t.ID, Reward: t.Reward, Attempts: t.Attempts}
	switch {
	case verified:
		n.Kind = NoticeVerified
		n.Text = fmt.Sprintf("Task verified, +%d coins", t.Reward)
	case t.Blocked(tr.cfg.MaxAttempts):
		n.Kind = NoticeBlocked
		n.Text = fmt.Sprintf("Task blocked after %d attempts", t.Attempts)
	case t.VerificationStatus == StatusFailed:
		n.Kind = NoticeTooEarly
		n.Text = fmt.Sprintf("Not enough time spent, stay at least %ds", t.MinimumTime)
	default:
		// Verification was suppressed by the cooldown and left the task as is.
		n.Kind = NoticeCooldown
		n.Text = "Please wait before trying again"
	}
	return n
}

func (tr *Trigger) finish(a *Attempt, r Result) {
	if a.resolve(r) {
		tr.metrics.engagements.WithLabelValues(string(r.Path)).Inc()
		zap.L().Info("engagement resolved",
			zap.String("task_id", a.TaskID),
			zap.String("attempt_id", a.ID.String()),
			zap.String("path", string(r.Path)),
			zap.Bool("verified", r.Verified),
		)
	}
	a.cancel()
}

// Close cancels pending attempts and waits for them to resolve.
func (tr *Trigger) Close() {
	tr.mu.Lock()
	tr.closed = true
	tr.mu.Unlock()

	tr.cancel()
	tr.wg.Wait()
}
