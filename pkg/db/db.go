package db

import (
	"context"
	"fmt"
	"time"

	"miniapp-rewards/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(registerClose, Instrument),
)

const (
	connectRetries    = 5
	connectRetryDelay = 3 * time.Second
)

// Dialect picks the gorm dialector for DATABASE.TYPE.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch d.Type {
	case "", "sqlite":
		return sqlite.Open(d.Path), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			d.Host, d.Port, d.User, d.Password, d.DBNAME, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Type)
	}
}

func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	logLevel := logger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel, showSQL)

	var db *gorm.DB
	var err error
	for i := 0; i < connectRetries; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying...", zap.Int("retry", i+1), zap.Duration("delay", connectRetryDelay), zap.Error(err))
		time.Sleep(connectRetryDelay)
	}
	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[DB] Database connection configured", zap.String("dialect", dialector.Name()))
	return db, nil
}

func registerClose(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})
}

// Instrument registers the gorm tracing plugin when tracing is enabled and
// always exports connection pool stats to the default prometheus registry.
func Instrument(cfg *config.Config, db *gorm.DB) error {
	if cfg.Otel.Enable {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			zap.L().Error("[DB] Failed to register db telemetry", zap.Error(err))
			return err
		}
	}

	if err := db.Use(prometheus.New(prometheus.Config{
		DBName:          dbName(cfg),
		RefreshInterval: 15,
	})); err != nil {
		zap.L().Error("[DB] Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}

func dbName(cfg *config.Config) string {
	if cfg.Database.Type == "" || cfg.Database.Type == "sqlite" {
		return cfg.Database.Path
	}
	return cfg.Database.DBNAME
}
