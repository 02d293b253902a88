package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const configType = "yaml"

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	// NodeID seeds the snowflake generator; unique per running instance.
	NodeID int64 `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type     string `mapstructure:"TYPE"`
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		DBNAME   string `mapstructure:"DBNAME"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		SSLMode  string `mapstructure:"SSLMODE"`
		Timezone string `mapstructure:"TIMEZONE"`
		// Path is the sqlite file; ignored by the other dialects.
		Path string `mapstructure:"PATH"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Storage struct {
		Driver  string `mapstructure:"DRIVER"`
		Profile string `mapstructure:"PROFILE"`
	} `mapstructure:"STORAGE"`
	Queue struct {
		Enable      bool   `mapstructure:"ENABLE"`
		Name        string `mapstructure:"NAME"`
		Concurrency int    `mapstructure:"CONCURRENCY"`
	} `mapstructure:"QUEUE"`
	Rewards struct {
		Cooldown      time.Duration `mapstructure:"COOLDOWN"`
		MaxAttempts   int           `mapstructure:"MAX_ATTEMPTS"`
		VerifyBuffer  time.Duration `mapstructure:"VERIFY_BUFFER"`
		SettleDelay   time.Duration `mapstructure:"SETTLE_DELAY"`
		ListenCeiling time.Duration `mapstructure:"LISTEN_CEILING"`
	} `mapstructure:"REWARDS"`
	Otel struct {
		Enable bool `mapstructure:"ENABLE"`
		// Protocol is "http" or "grpc".
		Protocol    string  `mapstructure:"PROTOCOL"`
		Endpoint    string  `mapstructure:"ENDPOINT"`
		Insecure    bool    `mapstructure:"INSECURE"`
		SampleRatio float64 `mapstructure:"SAMPLE_RATIO"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Catalog []TaskDefinition `mapstructure:"CATALOG"`
}

// TaskDefinition is one catalog entry as written in config.yaml.
type TaskDefinition struct {
	ID          string `mapstructure:"ID"`
	Platform    string `mapstructure:"PLATFORM"`
	Type        string `mapstructure:"TYPE"`
	Title       string `mapstructure:"TITLE"`
	Description string `mapstructure:"DESCRIPTION"`
	URL         string `mapstructure:"URL"`
	Reward      int64  `mapstructure:"REWARD"`
	MinimumTime int    `mapstructure:"MINIMUM_TIME"`
	TimeLimit   int    `mapstructure:"TIME_LIMIT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "miniapp-rewards")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.PATH", "rewards.db")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("STORAGE.DRIVER", "memory")
	v.SetDefault("STORAGE.PROFILE", "default")
	v.SetDefault("QUEUE.ENABLE", false)
	v.SetDefault("QUEUE.NAME", "rewards")
	v.SetDefault("QUEUE.CONCURRENCY", 1)
	v.SetDefault("REWARDS.COOLDOWN", 30*time.Second)
	v.SetDefault("REWARDS.MAX_ATTEMPTS", 3)
	v.SetDefault("REWARDS.VERIFY_BUFFER", 2*time.Second)
	v.SetDefault("REWARDS.SETTLE_DELAY", time.Second)
	v.SetDefault("REWARDS.LISTEN_CEILING", 60*time.Second)
	v.SetDefault("OTEL.ENABLE", false)
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("OTEL.ENDPOINT", "localhost:4318")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("OTEL.SAMPLE_RATIO", 1.0)
	v.SetDefault("PYROSCOPE.ENABLE", false)
	v.SetDefault("PYROSCOPE.ADDR", "http://localhost:4040")
}

// Load reads configuration from path, or from ./config.yaml when path is
// empty. A missing ./config.yaml is not an error: defaults and environment
// variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.TLS.Enable && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return nil, fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	return &cfg, nil
}
