package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"miniapp-rewards/pkg/kvstore"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var epoch = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func newClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(epoch)
	return clk
}

// quick_like is the five second, fifty coin task the scenarios use.
func testCatalog() []Definition {
	return []Definition{
		{
			ID:          "quick_like",
			Platform:    PlatformTikTok,
			Type:        ActionLike,
			Title:       "Like our latest video",
			URL:         "https://www.tiktok.com/@miniapp/video/1",
			Reward:      50,
			MinimumTime: 5,
		},
		{
			ID:          "slow_follow",
			Platform:    PlatformInstagram,
			Type:        ActionFollow,
			Title:       "Follow us",
			URL:         "https://www.instagram.com/miniapp",
			Reward:      100,
			MinimumTime: 10,
		},
	}
}

var errSaveFailed = errors.New("disk full")

// flakyStorage fails every Save while failing is set.
type flakyStorage struct {
	Storage

	mu      sync.Mutex
	failing bool
	saves   int
}

func (f *flakyStorage) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyStorage) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errSaveFailed
	}
	f.saves++
	return f.Storage.Save(ctx, snap)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []TaskVerifiedPayload
	err    error
}

func (r *recordingPublisher) PublishTaskVerified(_ context.Context, p TaskVerifiedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
	return r.err
}

func (r *recordingPublisher) published() []TaskVerifiedPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskVerifiedPayload(nil), r.events...)
}

func newTestStore(t *testing.T, clk clock.Clock, storage Storage) *Store {
	t.Helper()
	if storage == nil {
		storage = NewKVStorage(kvstore.NewMemoryStore(), "test")
	}
	s, err := NewStore(context.Background(), StoreOptions{
		Storage: storage,
		Catalog: testCatalog(),
		Clock:   clk,
	})
	require.NoError(t, err)
	return s
}

func mustTask(t *testing.T, s *Store, id string) Task {
	t.Helper()
	task, err := s.Task(id)
	require.NoError(t, err)
	return task
}
