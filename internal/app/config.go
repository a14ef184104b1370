package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/memocache/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memocache"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# memocache configuration
# Run: memocache --help

# All values optional; defaults shown.
# cache:
#   default_ttl_ms: 300000
#   max_size: 1000
#   cleanup_interval_ms: 60000
#   max_retries: 3
#   memory_threshold_mb: 100
#   max_alerts: 10
# rate_limit:
#   window_ms: 60000
#   max_requests: 100
#   skip_successful: false
#   backoff:
#     enabled: false
#     base_delay_ms: 1000
#     max_delay_ms: 30000
#     factor: 2
`
