package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"miniapp-rewards/pkg/kvstore"
	"miniapp-rewards/pkg/storekey"
)

// Snapshot is the persisted form of the rewards state.
type Snapshot struct {
	Stats UserStats
	Tasks []Task
	// Fresh is set by Load when nothing has been persisted yet.
	Fresh bool
}

type Storage interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// KVStorage keeps the stats and tasks records of one profile in a
// kvstore.Store.
type KVStorage struct {
	kv       kvstore.Store
	statsKey string
	tasksKey string
}

func NewKVStorage(kv kvstore.Store, profile string) *KVStorage {
	return &KVStorage{
		kv:       kv,
		statsKey: storekey.BuildStatsKey(profile),
		tasksKey: storekey.BuildTasksKey(profile),
	}
}

func (s *KVStorage) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Stats: NewUserStats()}

	statsFound, err := s.get(ctx, s.statsKey, &snap.Stats)
	if err != nil {
		return Snapshot{}, err
	}
	tasksFound, err := s.get(ctx, s.tasksKey, &snap.Tasks)
	if err != nil {
		return Snapshot{}, err
	}

	snap.Fresh = !statsFound && !tasksFound
	return snap, nil
}

func (s *KVStorage) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *KVStorage) Save(ctx context.Context, snap Snapshot) error {
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return err
	}

	tasks := snap.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	tasksRaw, err := json.Marshal(tasks)
	if err != nil {
		return err
	}

	return s.kv.SetMany(ctx,
		kvstore.Entry{Key: s.statsKey, Value: stats},
		kvstore.Entry{Key: s.tasksKey, Value: tasksRaw},
	)
}
