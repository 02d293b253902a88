package logger

import (
	"miniapp-rewards/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config `optional:"true"`
}

func New(p ConfigParams) *zap.Logger {
	log := Build(p.Cfg)
	zap.ReplaceGlobals(log)
	return log
}

// Build returns a development logger, or a JSON production logger when the
// application runs with APP_ENV=production.
func Build(cfg *config.Config) *zap.Logger {
	log := zap.Must(zap.NewDevelopment())
	if cfg == nil {
		return log
	}

	if cfg.AppEnv == "production" {
		config := zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"
		config.EncoderConfig.LevelKey = "severity"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		config.Encoding = "json"
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		log = zap.Must(config.Build())
	}

	return log.With(
		zap.String("env", cfg.AppEnv),
		zap.String("service_name", cfg.AppName),
		zap.String("profile", cfg.Storage.Profile),
	)
}
