package rewards

import (
	"context"

	"go.uber.org/zap"
)

//go:generate mockgen -source=notify.go -destination=mock_notify_test.go -package=rewards

// Launcher opens a task's external URL. It returns immediately.
type Launcher interface {
	Open(ctx context.Context, url string)
}

// Notifier shows short status messages to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type NoticeKind string

const (
	NoticeInProgress       NoticeKind = "in_progress"
	NoticeChecking         NoticeKind = "checking"
	NoticeVerified         NoticeKind = "verified"
	NoticeTooEarly         NoticeKind = "too_early"
	NoticeBlocked          NoticeKind = "blocked"
	NoticeCooldown         NoticeKind = "cooldown"
	NoticeAlreadyCompleted NoticeKind = "already_completed"
	NoticeError            NoticeKind = "error"
)

type Notice struct {
	Kind     NoticeKind `json:"kind"`
	TaskID   string     `json:"task_id"`
	Reward   int64      `json:"reward,omitempty"`
	Attempts int        `json:"attempts,omitempty"`
	Text     string     `json:"text"`
}

// LogLauncher records the URL it was asked to open. The host shell does
// the actual navigation.
type LogLauncher struct{}

func (LogLauncher) Open(_ context.Context, url string) {
	zap.L().Info("opening task url", zap.String("url", url))
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notice) {
	zap.L().Info("notice",
		zap.String("kind", string(n.Kind)),
		zap.String("task_id", n.TaskID),
		zap.String("text", n.Text),
	)
}
