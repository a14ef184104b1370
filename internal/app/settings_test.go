package app

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSettingsStateForTest() {
	settingsOnce = sync.Once{}
	settings = Settings{}
	settingsErr = nil
}

func TestParseSettings(t *testing.T) {
	s, err := parseSettings([]byte(`
cache:
  default_ttl_ms: 120000
  max_size: 500
  cleanup_interval_ms: 30000
  memory_threshold_mb: 64
rate_limit:
  window_ms: 10000
  max_requests: 20
  backoff:
    enabled: true
    base_delay_ms: 2000
    max_delay_ms: 60000
    factor: 3
`))
	require.NoError(t, err)

	cfg := s.CacheConfig()
	assert.Equal(t, 2*time.Minute, cfg.DefaultTTL)
	assert.Equal(t, 500, cfg.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, float64(64), cfg.MemoryThresholdMB)

	rl := s.LimiterConfig()
	assert.Equal(t, 10*time.Second, rl.Window)
	assert.Equal(t, 20, rl.MaxRequests)
	assert.True(t, rl.Backoff.Enabled)
	assert.Equal(t, 2*time.Second, rl.Backoff.BaseDelay)
	assert.Equal(t, time.Minute, rl.Backoff.MaxDelay)
	assert.Equal(t, float64(3), rl.Backoff.Factor)
}

func TestParseSettings_InvalidYAML(t *testing.T) {
	_, err := parseSettings([]byte("cache: [not a mapping"))
	require.Error(t, err)
}

func TestCacheConfig_ClampsOversizedValues(t *testing.T) {
	s := Settings{Cache: CacheSettings{MaxSize: 10_000_000, MaxRetries: 50}}

	cfg := s.CacheConfig()
	assert.Equal(t, maxConfigurableSize, cfg.MaxSize)
	assert.Equal(t, maxConfigurableRetries, cfg.MaxRetries)
}

func TestCacheConfig_ZeroSettingsDeferToLibraryDefaults(t *testing.T) {
	cfg := Settings{}.CacheConfig()
	assert.Zero(t, cfg.MaxSize)
	assert.Zero(t, cfg.DefaultTTL)
}

func TestLoadSettings_PrefersUserConfigOverLocal(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	userConfigPath := filepath.Join(home, ".config", "memocache", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("cache:\n  max_size: 111\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("cache:\n  max_size: 222\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, 111, s.Cache.MaxSize)
}

func TestLoadSettings_FallsBackToLocalConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("cache:\n  max_size: 222\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, 222, s.Cache.MaxSize)
}
