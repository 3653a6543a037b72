package config

import "time"

type StoreCfg struct {
	// SizeBytes is the hard memory limit for payloads. Inserts that push the
	// store past it trigger inline eviction.
	SizeBytes int64 `yaml:"size"`

	// StatsLogsEnabled turns on the interval telemetry logger.
	StatsLogsEnabled bool `yaml:"stats_logs_enabled"`

	// StatsLogsInterval is the telemetry logging period.
	StatsLogsInterval time.Duration `yaml:"stats_logs_interval"`

	// CachedTimeEnabled keeps the coarse clock updater bound to the cache
	// lifecycle; the updater stops when the cache closes.
	CachedTimeEnabled bool `yaml:"cached_time_enabled"`
}
