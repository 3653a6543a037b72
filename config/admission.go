package config

// AdmissionCfg dimensions the frequency-based admission filter
// (doorkeeper + count-min sketch).
type AdmissionCfg struct {
	// Capacity is the logical item count used to size the sketch tables.
	// Typically aligned with the expected number of cached entries.
	Capacity int `yaml:"capacity"`

	// Shards is the number of independent admission shards; reduces CAS
	// contention on multi-core hosts. Must be a power of two.
	Shards int `yaml:"shards"`

	// MinTableLenPerShard bounds the per-shard counter table from below so a
	// low Capacity / high Shards combination cannot produce useless tables.
	MinTableLenPerShard int `yaml:"min_table_len_per_shard"`

	// SampleMultiplier scales the aging window: counters are halved after
	// SampleMultiplier * tableLen recorded accesses.
	SampleMultiplier int `yaml:"sample_multiplier"`

	// DoorBitsPerCounter sizes the doorkeeper bitset relative to the counter
	// table. More bits lower the false-positive rate at a memory cost.
	DoorBitsPerCounter int `yaml:"door_bits_per_counter"`
}

func (cfg *AdmissionCfg) Enabled() bool {
	return cfg != nil
}
