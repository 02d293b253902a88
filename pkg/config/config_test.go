package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "APP_NAME: rewards-test\n"))
	require.NoError(t, err)

	require.Equal(t, "rewards-test", cfg.AppName)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, 30*time.Second, cfg.Rewards.Cooldown)
	require.Equal(t, 3, cfg.Rewards.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.Rewards.VerifyBuffer)
	require.Equal(t, time.Second, cfg.Rewards.SettleDelay)
	require.Equal(t, 60*time.Second, cfg.Rewards.ListenCeiling)
	require.Equal(t, int64(1), cfg.NodeID)
	require.Equal(t, 1, cfg.Queue.Concurrency)
	require.Empty(t, cfg.Catalog)
}

func TestLoadCatalogAndOverrides(t *testing.T) {
	path := writeConfig(t, `
STORAGE:
  DRIVER: database
  PROFILE: user-42
REWARDS:
  COOLDOWN: 45s
CATALOG:
  - ID: tiktok_like
    PLATFORM: tiktok
    TYPE: like
    TITLE: Like our video
    URL: https://www.tiktok.com/@shop/video/1
    REWARD: 50
    MINIMUM_TIME: 5
`)
	t.Setenv("REWARDS_MAX_ATTEMPTS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "database", cfg.Storage.Driver)
	require.Equal(t, "user-42", cfg.Storage.Profile)
	require.Equal(t, 45*time.Second, cfg.Rewards.Cooldown)
	require.Equal(t, 5, cfg.Rewards.MaxAttempts)
	require.Len(t, cfg.Catalog, 1)
	require.Equal(t, "tiktok_like", cfg.Catalog[0].ID)
	require.Equal(t, int64(50), cfg.Catalog[0].Reward)
	require.Equal(t, 5, cfg.Catalog[0].MinimumTime)
}

func TestLoadRejectsTLSWithoutCert(t *testing.T) {
	_, err := Load(writeConfig(t, "TLS:\n  ENABLE: true\n"))
	require.Error(t, err)
}
