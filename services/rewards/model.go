package rewards

import "time"

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformTikTok, PlatformInstagram:
		return true
	default:
		return false
	}
}

type ActionType string

const (
	ActionLike    ActionType = "like"
	ActionFollow  ActionType = "follow"
	ActionShare   ActionType = "share"
	ActionView    ActionType = "view"
	ActionComment ActionType = "comment"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionLike, ActionFollow, ActionShare, ActionView, ActionComment:
		return true
	default:
		return false
	}
}

type VerificationStatus string

const (
	StatusPending   VerificationStatus = "pending"
	StatusVerifying VerificationStatus = "verifying"
	StatusVerified  VerificationStatus = "verified"
	StatusFailed    VerificationStatus = "failed"
)

// Definition holds the static, catalog-owned attributes of a task.
// MinimumTime and TimeLimit are in seconds; TimeLimit is advisory only.
type Definition struct {
	ID          string     `json:"id"`
	Platform    Platform   `json:"platform"`
	Type        ActionType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Reward      int64      `json:"reward"`
	MinimumTime int        `json:"minimumTime"`
	TimeLimit   int        `json:"timeLimit,omitempty"`
}

func (d Definition) MinimumDuration() time.Duration {
	return time.Duration(d.MinimumTime) * time.Second
}

// Task is a catalog definition plus the runtime state of its attempts.
// Timestamps are milliseconds since the Unix epoch; nil means unset.
type Task struct {
	Definition

	Completed          bool               `json:"completed"`
	StartTime          *int64             `json:"startTime"`
	Attempts           int                `json:"attempts"`
	LastAttempt        *int64             `json:"lastAttempt"`
	LastDecision       *int64             `json:"lastDecision,omitempty"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
}

func NewTask(def Definition) Task {
	return Task{Definition: def, VerificationStatus: StatusPending}
}

// Blocked reports the terminal, non-claimable condition reached once the
// attempt cap is used up by failures.
func (t Task) Blocked(maxAttempts int) bool {
	return !t.Completed && t.Attempts >= maxAttempts && t.VerificationStatus == StatusFailed
}

func (t Task) Verified() bool {
	return t.Completed && t.VerificationStatus == StatusVerified
}

type UserStats struct {
	TotalCoins     int64 `json:"totalCoins"`
	TasksCompleted int   `json:"tasksCompleted"`
	CurrentStreak  int   `json:"currentStreak"`
	Level          int   `json:"level"`
	TotalSaved     int64 `json:"totalSaved"`
}

func NewUserStats() UserStats {
	return UserStats{Level: 1}
}

func millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func copyMillis(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// clone returns a deep copy so callers never share timestamp pointers with
// the store.
func (t Task) clone() Task {
	t.StartTime = copyMillis(t.StartTime)
	t.LastAttempt = copyMillis(t.LastAttempt)
	t.LastDecision = copyMillis(t.LastDecision)
	return t
}
