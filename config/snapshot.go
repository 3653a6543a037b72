package config

type SnapshotCfg struct {
	// Dir is the base directory holding versioned snapshot subdirectories.
	Dir string `yaml:"dir"`

	// Name prefixes snapshot file names, one file per shard.
	Name string `yaml:"name"`

	// Gzip compresses shard files.
	Gzip bool `yaml:"gzip"`

	// CRCControl adds a CRC32 per record and rejects corrupt records on load.
	CRCControl bool `yaml:"crc_control"`

	// MaxVersions keeps only the newest N snapshot directories.
	MaxVersions int `yaml:"max_versions"`
}

func (cfg *SnapshotCfg) Enabled() bool {
	return cfg != nil
}
