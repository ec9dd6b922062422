package monitor

import (
	"fmt"
	"time"
)

// Config holds the monitor plugin settings (plugins.monitor.*).
type Config struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	NoticeTTL       time.Duration `mapstructure:"notice_ttl"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ICMPPrivileged  bool          `mapstructure:"icmp_privileged"`
	Endpoints       []Endpoint    `mapstructure:"endpoints"`
}

// DefaultConfig returns the settings used when nothing is configured.
// Endpoints is left empty so a configured list replaces the defaults
// instead of being merged into them; see DefaultEndpoints.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 10 * time.Second,
		ProbeTimeout:    10 * time.Second,
		NoticeTTL:       2 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultEndpoints is the stock dashboard: two APIs reached through the
// tunnel and two exposed directly.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{ID: "1", Name: "Projects API", Address: "http://172.31.14.62:3005/api/projects", Secured: true},
		{ID: "2", Name: "Users API", Address: "http://34.211.221.154:443/api/users", Secured: false},
		{ID: "3", Name: "System Health API", Address: "http://34.211.221.154:443/api/health", Secured: false},
		{ID: "4", Name: "Authentication API", Address: "http://172.31.14.62:3005/api/auth", Secured: true},
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative, got %s", c.RefreshInterval)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.NoticeTTL < 0 {
		return fmt.Errorf("notice_ttl must not be negative, got %s", c.NoticeTTL)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
