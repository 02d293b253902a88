package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"miniapp-rewards/pkg/errutil"
	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/storekey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStoreFreshStateIsPersisted(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := newTestStore(t, newClock(), NewKVStorage(kv, "test"))

	require.Equal(t, NewUserStats(), s.Stats())
	require.Len(t, s.Tasks(), 2)

	_, err := kv.Get(ctx, storekey.BuildStatsKey("test"))
	require.NoError(t, err)
	_, err = kv.Get(ctx, storekey.BuildTasksKey("test"))
	require.NoError(t, err)
}

func TestStoreScenarioVerified(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := newTestStore(t, clk, nil)

	require.NoError(t, s.Start(ctx, "quick_like"))
	task := mustTask(t, s, "quick_like")
	require.Equal(t, StatusPending, task.VerificationStatus)
	require.Equal(t, 1, task.Attempts)
	require.Equal(t, clk.Now().UnixMilli(), *task.StartTime)
	require.Equal(t, clk.Now().UnixMilli(), *task.LastAttempt)

	clk.Add(5100 * time.Millisecond)
	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.True(t, ok)

	task = mustTask(t, s, "quick_like")
	require.True(t, task.Completed)
	require.Equal(t, StatusVerified, task.VerificationStatus)
	require.Equal(t, UserStats{TotalCoins: 50, TasksCompleted: 1, CurrentStreak: 1, Level: 1}, s.Stats())
}

func TestStoreScenarioTooEarly(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := newTestStore(t, clk, nil)

	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(2 * time.Second)

	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.False(t, ok)

	task := mustTask(t, s, "quick_like")
	require.Equal(t, 1, task.Attempts)
	require.Equal(t, StatusFailed, task.VerificationStatus)
	require.False(t, task.Completed)
	require.False(t, task.Blocked(s.Policy().MaxAttempts))
	require.Equal(t, NewUserStats(), s.Stats())
}

func TestStoreScenarioAttemptCap(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := newTestStore(t, clk, nil)

	for i := 1; i <= 3; i++ {
		clk.Add(31 * time.Second)
		require.NoError(t, s.Start(ctx, "quick_like"))
		clk.Add(2 * time.Second)

		ok, err := s.Verify(ctx, "quick_like")
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, i, mustTask(t, s, "quick_like").Attempts)
	}
	require.True(t, mustTask(t, s, "quick_like").Blocked(3))

	clk.Add(31 * time.Second)
	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(10 * time.Second)

	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.False(t, ok)

	task := mustTask(t, s, "quick_like")
	require.Equal(t, 4, task.Attempts)
	require.Equal(t, StatusFailed, task.VerificationStatus)
	require.True(t, task.Blocked(3))
	require.Zero(t, s.Stats().TotalCoins)
}

func TestStoreMinimumTimeBoundary(t *testing.T) {
	for _, tt := range []struct {
		elapsed time.Duration
		want    bool
	}{
		{4999 * time.Millisecond, false},
		{5000 * time.Millisecond, true},
	} {
		ctx := context.Background()
		clk := newClock()
		s := newTestStore(t, clk, nil)

		require.NoError(t, s.Start(ctx, "quick_like"))
		clk.Add(tt.elapsed)

		ok, err := s.Verify(ctx, "quick_like")
		require.NoError(t, err)
		require.Equal(t, tt.want, ok, "elapsed %s", tt.elapsed)
	}
}

func TestStoreCooldownSuppressesVerify(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := newTestStore(t, clk, nil)

	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(2 * time.Second)
	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.False(t, ok)
	before := mustTask(t, s, "quick_like")

	// Enough time has passed for the minimum, but the last decision is
	// only ten seconds old.
	clk.Add(10 * time.Second)
	ok, err = s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, before, mustTask(t, s, "quick_like"))

	clk.Add(21 * time.Second)
	ok, err = s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, mustTask(t, s, "quick_like").Attempts)
}

func TestStoreVerifiedTaskIsTerminal(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := newTestStore(t, clk, nil)

	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(6 * time.Second)
	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.True(t, ok)

	stats := s.Stats()
	task := mustTask(t, s, "quick_like")

	for i := 0; i < 3; i++ {
		clk.Add(40 * time.Second)
		require.NoError(t, s.Start(ctx, "quick_like"))
		clk.Add(40 * time.Second)
		ok, err := s.Verify(ctx, "quick_like")
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.Equal(t, stats, s.Stats())
	require.Equal(t, task, mustTask(t, s, "quick_like"))
}

func TestStoreVerifyWithoutStart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newClock(), nil)

	ok, err := s.Verify(ctx, "slow_follow")
	require.NoError(t, err)
	require.False(t, ok)

	task := mustTask(t, s, "slow_follow")
	require.Equal(t, StatusFailed, task.VerificationStatus)
	require.Zero(t, task.Attempts)
}

func TestStoreUnknownTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newClock(), nil)

	_, err := s.Task("nope")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(s.Start(ctx, "nope")))
	_, err = s.Verify(ctx, "nope")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestStoreRejectsInvalidCatalog(t *testing.T) {
	_, err := NewStore(context.Background(), StoreOptions{
		Storage: NewKVStorage(kvstore.NewMemoryStore(), "test"),
		Catalog: []Definition{{ID: "x"}},
	})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestStoreReloadKeepsState(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	kv := kvstore.NewMemoryStore()

	s := newTestStore(t, clk, NewKVStorage(kv, "test"))
	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(6 * time.Second)
	_, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, "slow_follow"))

	reloaded := newTestStore(t, clk, NewKVStorage(kv, "test"))
	require.Equal(t, s.Stats(), reloaded.Stats())
	require.Equal(t, s.Tasks(), reloaded.Tasks())

	// An attempt interrupted by the reload comes back as pending.
	require.Equal(t, StatusPending, mustTask(t, reloaded, "slow_follow").VerificationStatus)
}

func TestStoreReconcilesDriftedStats(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()

	retired := verifiedTask(Definition{
		ID:       "retired_share",
		Platform: PlatformTikTok,
		Type:     ActionShare,
		URL:      "https://www.tiktok.com/@miniapp/video/2",
		Reward:   70,
	})
	tasks, err := json.Marshal([]Task{verifiedTask(testCatalog()[0]), retired})
	require.NoError(t, err)
	stats, err := json.Marshal(UserStats{TotalCoins: 1, CurrentStreak: 2, Level: 1, TotalSaved: 9})
	require.NoError(t, err)
	require.NoError(t, kv.SetMany(ctx,
		kvstore.Entry{Key: storekey.BuildTasksKey("test"), Value: tasks},
		kvstore.Entry{Key: storekey.BuildStatsKey("test"), Value: stats},
	))

	s := newTestStore(t, newClock(), NewKVStorage(kv, "test"))

	want := UserStats{TotalCoins: 120, TasksCompleted: 2, CurrentStreak: 2, Level: 1, TotalSaved: 9}
	require.Equal(t, want, s.Stats())
	require.Equal(t, "retired_share", s.Tasks()[2].ID)

	snap, err := NewKVStorage(kv, "test").Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, snap.Stats)
}

func TestStoreSaveFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	storage := &flakyStorage{Storage: NewKVStorage(kvstore.NewMemoryStore(), "test")}
	s := newTestStore(t, clk, storage)

	storage.setFailing(true)
	err := s.Start(ctx, "quick_like")
	require.ErrorIs(t, err, errSaveFailed)
	require.Equal(t, errutil.StatusInternal, errutil.StatusOf(err))
	require.Zero(t, mustTask(t, s, "quick_like").Attempts)

	storage.setFailing(false)
	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(6 * time.Second)

	storage.setFailing(true)
	_, err = s.Verify(ctx, "quick_like")
	require.ErrorIs(t, err, errSaveFailed)
	require.False(t, mustTask(t, s, "quick_like").Completed)
	require.Equal(t, StatusPending, mustTask(t, s, "quick_like").VerificationStatus)
	require.Zero(t, s.Stats().TotalCoins)

	storage.setFailing(false)
	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(50), s.Stats().TotalCoins)
}

func TestStorePublishesAfterVerify(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	pub := &recordingPublisher{err: errors.New("queue down")}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	s, err := NewStore(ctx, StoreOptions{
		Storage:   NewKVStorage(kvstore.NewMemoryStore(), "test"),
		Catalog:   testCatalog(),
		Clock:     clk,
		Publisher: pub,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx, "quick_like"))
	clk.Add(2 * time.Second)
	ok, err := s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, pub.published())

	clk.Add(31 * time.Second)
	ok, err = s.Verify(ctx, "quick_like")
	require.NoError(t, err)
	require.True(t, ok, "a failing publisher does not undo the award")

	events := pub.published()
	require.Len(t, events, 1)
	require.Equal(t, "quick_like", events[0].TaskID)
	require.Equal(t, int64(50), events[0].TotalCoins)
	require.True(t, clk.Now().Equal(events[0].VerifiedAt))

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.starts))
	require.Equal(t, float64(50), testutil.ToFloat64(metrics.coinsAwarded))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.decisions.WithLabelValues("rejected", "too_early")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.decisions.WithLabelValues("accepted", "accepted")))
}

// Random start/verify/advance sequences must keep the stats equal to the
// fold over verified tasks, in memory and in storage.
func TestStoreStatsMatchVerifiedTasks(t *testing.T) {
	ctx := context.Background()

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		clk := newClock()
		storage := NewKVStorage(kvstore.NewMemoryStore(), "prop")
		s := newTestStore(t, clk, storage)
		ids := []string{"quick_like", "slow_follow"}

		for step := 0; step < 200; step++ {
			id := ids[rng.Intn(len(ids))]
			before, _ := s.Task(id)
			coinsBefore := s.Stats().TotalCoins

			switch rng.Intn(3) {
			case 0:
				require.NoError(t, s.Start(ctx, id))
			case 1:
				_, err := s.Verify(ctx, id)
				require.NoError(t, err)
			default:
				clk.Add(time.Duration(rng.Intn(40_000)) * time.Millisecond)
			}

			tasks, stats := s.Tasks(), s.Stats()
			require.True(t, Consistent(tasks, stats), "seed %d step %d: %v", seed, step, Audit(tasks, stats))
			require.Empty(t, Audit(tasks, stats))

			after := mustTask(t, s, id)
			if before.Verified() {
				require.Equal(t, before, after)
				require.Equal(t, coinsBefore, stats.TotalCoins)
			}
			if after.Verified() {
				require.LessOrEqual(t, after.Attempts, s.Policy().MaxAttempts)
			}

			snap, err := storage.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, stats, snap.Stats)
		}
	}
}
