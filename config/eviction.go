package config

// LRUMode defines the LRU eviction strategy.
type LRUMode string

const (
	// LRUModeSampling picks victims by probing random entries, Redis-style.
	LRUModeSampling LRUMode = "sampling"

	// LRUModeListing keeps an exact per-shard LRU list and evicts from the
	// tail.
	LRUModeListing LRUMode = "listing"
)

type EvictionCfg struct {
	// LRUMode is "sampling" or "listing".
	LRUMode LRUMode `yaml:"mode"`

	// SoftLimitCoefficient places the soft memory limit as a fraction of
	// Store.SizeBytes; the background evictor starts working once usage
	// crosses it. Example: 0.8.
	SoftLimitCoefficient float64 `yaml:"soft_limit_coefficient"`

	// SoftMemoryLimitBytes is derived during Adjust; not read from YAML.
	SoftMemoryLimitBytes int64

	// CallsPerSec is how many eviction scan cycles run per second.
	CallsPerSec int64 `yaml:"calls_per_sec"`

	// BackoffSpinsPerCall bounds entries examined per eviction cycle, so one
	// cycle cannot monopolize shard locks.
	BackoffSpinsPerCall int64 `yaml:"backoff_spins_per_call"`

	// IsListing is derived from LRUMode during Adjust; not read from YAML.
	IsListing bool
}

func (cfg *EvictionCfg) Enabled() bool {
	return cfg != nil
}
