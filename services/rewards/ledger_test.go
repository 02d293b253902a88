package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestLedgerHandleTaskVerified(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(kvstore.NewMemoryStore())

	payload, err := json.Marshal(TaskVerifiedPayload{Profile: "p1", TaskID: "quick_like", Reward: 50, TotalCoins: 50, TasksCompleted: 1})
	require.NoError(t, err)
	task := asynq.NewTask(taskname.RewardsTaskVerified, payload)

	require.NoError(t, l.HandleTaskVerified(ctx, task))
	require.NoError(t, l.HandleTaskVerified(ctx, task))

	entries, err := l.Entries(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(50), entries[0].Reward)

	other, err := l.Entries(ctx, "p2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestLedgerRejectsBadPayloads(t *testing.T) {
	l := NewLedger(kvstore.NewMemoryStore())

	err := l.HandleTaskVerified(context.Background(), asynq.NewTask(taskname.RewardsTaskVerified, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = l.HandleTaskVerified(context.Background(), asynq.NewTask(taskname.RewardsTaskVerified, []byte(`{"task_id":"x"}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestAuditLedger(t *testing.T) {
	defs := testCatalog()
	tasks := []Task{verifiedTask(defs[0]), verifiedTask(defs[1])}

	problems := AuditLedger([]TaskVerifiedPayload{
		{TaskID: "quick_like"},
		{TaskID: "ghost"},
	}, tasks)

	require.Equal(t, []string{
		"ledger has task ghost, which is not verified",
		"task slow_follow is verified but missing from the ledger",
	}, problems)
}
