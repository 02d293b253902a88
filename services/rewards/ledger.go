package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/storekey"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Ledger is the append-only record of rewards:task_verified events, one
// list per profile. It is filled by the queue worker and read by audits.
type Ledger struct {
	mu sync.Mutex
	kv kvstore.Store
}

func NewLedger(kv kvstore.Store) *Ledger {
	return &Ledger{kv: kv}
}

func (l *Ledger) Entries(ctx context.Context, profile string) ([]TaskVerifiedPayload, error) {
	raw, err := l.kv.Get(ctx, storekey.BuildLedgerKey(profile))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []TaskVerifiedPayload
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return entries, nil
}

// Record appends p unless the profile already has an entry for the task.
// It reports whether p was appended.
func (l *Ledger) Record(ctx context.Context, p TaskVerifiedPayload) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.Entries(ctx, p.Profile)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.TaskID == p.TaskID {
			return false, nil
		}
	}

	raw, err := json.Marshal(append(entries, p))
	if err != nil {
		return false, err
	}
	if err := l.kv.SetMany(ctx, kvstore.Entry{Key: storekey.BuildLedgerKey(p.Profile), Value: raw}); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) HandleTaskVerified(ctx context.Context, t *asynq.Task) error {
	var p TaskVerifiedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.Profile == "" || p.TaskID == "" {
		return fmt.Errorf("%s without profile or task id: %w", t.Type(), asynq.SkipRetry)
	}

	appended, err := l.Record(ctx, p)
	if err != nil {
		return err
	}

	zap.L().Info("task verified event recorded",
		zap.String("profile", p.Profile),
		zap.String("task_id", p.TaskID),
		zap.Int64("reward", p.Reward),
		zap.Bool("duplicate", !appended),
	)
	return nil
}

// AuditLedger reports ledger entries for tasks that are not verified and
// verified tasks the ledger never saw.
func AuditLedger(entries []TaskVerifiedPayload, tasks []Task) []string {
	var problems []string

	verified := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Verified() {
			verified[t.ID] = true
		}
	}

	recorded := make(map[string]bool, len(entries))
	for _, e := range entries {
		recorded[e.TaskID] = true
		if !verified[e.TaskID] {
			problems = append(problems, fmt.Sprintf("ledger has task %s, which is not verified", e.TaskID))
		}
	}
	for _, t := range tasks {
		if verified[t.ID] && !recorded[t.ID] {
			problems = append(problems, fmt.Sprintf("task %s is verified but missing from the ledger", t.ID))
		}
	}
	return problems
}
