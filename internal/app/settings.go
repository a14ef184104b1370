package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dotcommander/memocache/pkg/cache"
	"github.com/dotcommander/memocache/pkg/ratelimit"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys. Durations are plain milliseconds.
type Settings struct {
	Cache     CacheSettings     `yaml:"cache"`
	RateLimit RateLimitSettings `yaml:"rate_limit"`
}

// CacheSettings configures the entry store and its janitor.
type CacheSettings struct {
	DefaultTTLMS      int     `yaml:"default_ttl_ms"`
	MaxSize           int     `yaml:"max_size"`
	CleanupIntervalMS int     `yaml:"cleanup_interval_ms"`
	MaxRetries        int     `yaml:"max_retries"`
	MemoryThresholdMB float64 `yaml:"memory_threshold_mb"`
	MaxAlerts         int     `yaml:"max_alerts"`
}

// RateLimitSettings configures the request limiter.
type RateLimitSettings struct {
	WindowMS       int             `yaml:"window_ms"`
	MaxRequests    int             `yaml:"max_requests"`
	SkipSuccessful bool            `yaml:"skip_successful"`
	Backoff        BackoffSettings `yaml:"backoff"`
}

// BackoffSettings configures blocking after consecutive failures.
type BackoffSettings struct {
	Enabled     bool    `yaml:"enabled"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Factor      float64 `yaml:"factor"`
}

const (
	maxConfigurableSize    = 1_000_000
	maxConfigurableRetries = 10
)

// CacheConfig converts validated settings into a cache.Config. Missing or
// invalid values stay zero and fall back to the library defaults; oversized
// values are clamped.
func (s Settings) CacheConfig() cache.Config {
	c := s.Cache

	cfg := cache.Config{
		DefaultTTL:        time.Duration(c.DefaultTTLMS) * time.Millisecond,
		MaxSize:           c.MaxSize,
		CleanupInterval:   time.Duration(c.CleanupIntervalMS) * time.Millisecond,
		MaxRetries:        c.MaxRetries,
		MemoryThresholdMB: c.MemoryThresholdMB,
		MaxAlerts:         c.MaxAlerts,
	}
	if cfg.MaxSize > maxConfigurableSize {
		cfg.MaxSize = maxConfigurableSize
	}
	if cfg.MaxRetries > maxConfigurableRetries {
		cfg.MaxRetries = maxConfigurableRetries
	}
	return cfg
}

// LimiterConfig converts validated settings into a ratelimit.Config.
func (s Settings) LimiterConfig() ratelimit.Config {
	r := s.RateLimit

	return ratelimit.Config{
		Window:         time.Duration(r.WindowMS) * time.Millisecond,
		MaxRequests:    r.MaxRequests,
		SkipSuccessful: r.SkipSuccessful,
		Backoff: ratelimit.BackoffConfig{
			Enabled:   r.Backoff.Enabled,
			BaseDelay: time.Duration(r.Backoff.BaseDelayMS) * time.Millisecond,
			MaxDelay:  time.Duration(r.Backoff.MaxDelayMS) * time.Millisecond,
			Factor:    r.Backoff.Factor,
		},
	}
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
//
//nolint:gochecknoglobals // sync.Once singleton is intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error
)

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/memocache/config.yaml
// 2) /etc/memocache/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}

		paths := []string{
			filepath.Join(dir, "config.yaml"),
			filepath.Join(string(os.PathSeparator), "etc", "memocache", "config.yaml"),
			"config.yaml",
		}
		for _, p := range paths {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	return parseSettings(b)
}

func parseSettings(b []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
