package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Adjust computes the derived fields. Must run once after the struct is
// populated, whether from YAML or by hand.
func (cfg *Cache) Adjust() {
	if cfg.Eviction.Enabled() {
		cfg.Eviction.IsListing = cfg.Eviction.LRUMode == LRUModeListing
		cfg.Eviction.SoftMemoryLimitBytes = int64(float64(cfg.Store.SizeBytes) * cfg.Eviction.SoftLimitCoefficient)
	}

	if cfg.Lifetime.Enabled() {
		cfg.Lifetime.IsRemoveOnTTL = cfg.Lifetime.OnTTL != TTLModeRefresh
	}

	if cfg.WriteBehind.Enabled() {
		if cfg.WriteBehind.Workers < 1 {
			cfg.WriteBehind.Workers = 1
		}
		if cfg.WriteBehind.MaxAttempts < 1 {
			cfg.WriteBehind.MaxAttempts = 1
		}
		if cfg.WriteBehind.RetryBackoff <= 0 {
			cfg.WriteBehind.RetryBackoff = 100 * time.Millisecond
		}
	}
}

// Load reads and adjusts a YAML config file.
func Load(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	cfg.Adjust()

	return cfg, nil
}
