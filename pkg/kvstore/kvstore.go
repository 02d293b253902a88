// Package kvstore is the durable key-value layer behind the rewards state.
// Values are JSON documents addressed by string keys.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"miniapp-rewards/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("kvstore: key not found")

type Entry struct {
	Key   string
	Value []byte
}

type Store interface {
	// Get returns ErrNotFound when key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	// SetMany writes all entries or none of them.
	SetMany(ctx context.Context, entries ...Entry) error
	Ping(ctx context.Context) error
}

const (
	DriverMemory   = "memory"
	DriverDatabase = "database"
	DriverRedis    = "redis"
)

var Module = fx.Module("kvstore",
	fx.Provide(Provide),
)

type Params struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB      `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

// Provide selects the backend named by STORAGE.DRIVER.
func Provide(p Params) (Store, error) {
	switch p.Config.Storage.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverDatabase:
		if p.DB == nil {
			return nil, fmt.Errorf("kvstore: driver %q requires a database", DriverDatabase)
		}
		return NewDatabaseStore(p.DB)
	case DriverRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("kvstore: driver %q requires a redis client", DriverRedis)
		}
		return NewRedisStore(p.Redis), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", p.Config.Storage.Driver)
	}
}
