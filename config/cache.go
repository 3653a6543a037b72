package config

// Cache groups configuration of all cache subsystems.
// Optional subsystems are pointers: a nil section disables the feature and the
// facade substitutes a no-op implementation.
type Cache struct {
	Store StoreCfg `yaml:"store"`

	// Admission configures TinyLFU-style frequency admission. When set, an
	// insert into a full cache must beat a sampled victim's estimated
	// frequency; when nil, every insert is admitted.
	Admission *AdmissionCfg `yaml:"admission"`

	// Lifetime configures TTL handling: expiry, refresh-ahead scheduling and
	// the stochastic early-expiry policy. When nil, entries never expire and
	// only eviction reclaims them.
	Lifetime *LifetimeCfg `yaml:"lifetime"`

	// Eviction configures memory-based eviction. When nil, the store is
	// unbounded (not recommended outside tests).
	Eviction *EvictionCfg `yaml:"eviction"`

	// WriteBehind configures the async flusher used by SetBehind. When nil,
	// SetBehind degrades to a synchronous write-through.
	WriteBehind *WriteBehindCfg `yaml:"write_behind"`

	// Snapshot configures persistence across restarts. When nil, the cache
	// starts cold and Close discards all state.
	Snapshot *SnapshotCfg `yaml:"snapshot"`
}
