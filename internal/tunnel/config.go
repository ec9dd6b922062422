package tunnel

import "time"

// Config holds the tunnel plugin settings (plugins.tunnel.*).
type Config struct {
	Backend          string        `mapstructure:"backend"`
	Command          string        `mapstructure:"command"`
	BridgeURL        string        `mapstructure:"bridge_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	JournalRetention time.Duration `mapstructure:"journal_retention"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendNone,
		Timeout:          60 * time.Second,
		JournalRetention: 30 * 24 * time.Hour,
	}
}
