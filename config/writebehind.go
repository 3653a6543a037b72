package config

import "time"

type WriteBehindCfg struct {
	// Workers is the number of flush consumers.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the dirty-key queue. SetBehind falls back to a
	// synchronous source write when the queue is full, so a write is delayed
	// at worst, never dropped.
	QueueCapacity int `yaml:"queue_capacity"`

	// MaxAttempts caps Source.Store attempts per flush, the first try
	// included.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the delay before the first retry; it doubles per
	// attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

func (cfg *WriteBehindCfg) Enabled() bool {
	return cfg != nil
}
