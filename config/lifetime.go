package config

import "time"

type TTLMode string

const (
	// TTLModeRemove drops entries once their TTL elapses.
	TTLModeRemove TTLMode = "remove"

	// TTLModeRefresh re-invokes the entry loader in the background instead of
	// dropping the entry (refresh-ahead).
	TTLModeRefresh TTLMode = "refresh"
)

type LifetimeCfg struct {
	// OnTTL selects what happens when an entry reaches its TTL.
	OnTTL TTLMode `yaml:"on_ttl"`

	// TTL is the default entry lifetime; loaders may override per entry.
	TTL time.Duration `yaml:"ttl"`

	// Rate caps refresh operations per second.
	Rate int `yaml:"rate"`

	// Beta steers the stochastic early-expiry probability. The expiry check
	// uses the exponential CDF p = 1 - exp(-beta * elapsed/ttl), so entries
	// spread their refreshes out before the deadline instead of expiring in
	// lockstep (the thundering-herd case the deterministic check invites).
	// Recommended range (0, 1].
	Beta float64 `yaml:"beta"`

	// StochasticRefreshEnabled switches the expiry check from deterministic
	// (elapsed > ttl) to the Beta-based probabilistic one.
	StochasticRefreshEnabled bool `yaml:"stochastic_refresh_enabled"`

	// Coefficient is the hard floor for stochastic expiry: no entry is
	// considered stale before TTL * Coefficient has elapsed. Range [0..1].
	Coefficient float64 `yaml:"coefficient"`

	// IsRemoveOnTTL is derived from OnTTL during Adjust; not read from YAML.
	IsRemoveOnTTL bool
}

func (cfg *LifetimeCfg) Enabled() bool {
	return cfg != nil
}
