package rewards

import "time"

type Outcome int

const (
	// OutcomeSuppressed leaves the task untouched.
	OutcomeSuppressed Outcome = iota
	OutcomeRejected
	OutcomeAccepted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "suppressed"
	}
}

type Reason string

const (
	ReasonAccepted          Reason = "accepted"
	ReasonAlreadyCompleted  Reason = "already_completed"
	ReasonCooldown          Reason = "cooldown"
	ReasonNoAttempt         Reason = "no_attempt"
	ReasonTooEarly          Reason = "too_early"
	ReasonAttemptsExhausted Reason = "attempts_exhausted"
)

type Decision struct {
	Outcome Outcome
	Reason  Reason
}

// Policy holds the anti-abuse thresholds of the verification heuristic.
//
// There is no server confirmation that the external action happened: a
// claim is honoured when the user stayed away at least the task's minimum
// time, has not exceeded MaxAttempts and is not retrying inside Cooldown.
// Waiting out the timer without acting still passes.
type Policy struct {
	Cooldown    time.Duration
	MaxAttempts int
}

var DefaultPolicy = Policy{
	Cooldown:    30 * time.Second,
	MaxAttempts: 3,
}

// Decide evaluates one verification request. It never mutates t.
func (p Policy) Decide(t Task, now time.Time) Decision {
	nowMs := now.UnixMilli()

	if t.Completed {
		return Decision{Outcome: OutcomeSuppressed, Reason: ReasonAlreadyCompleted}
	}

	if t.LastDecision != nil && nowMs-*t.LastDecision < p.Cooldown.Milliseconds() {
		return Decision{Outcome: OutcomeSuppressed, Reason: ReasonCooldown}
	}

	if t.StartTime == nil {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonNoAttempt}
	}

	if nowMs-*t.StartTime < int64(t.MinimumTime)*1000 {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonTooEarly}
	}

	if t.Attempts > p.MaxAttempts {
		return Decision{Outcome: OutcomeRejected, Reason: ReasonAttemptsExhausted}
	}

	return Decision{Outcome: OutcomeAccepted, Reason: ReasonAccepted}
}
