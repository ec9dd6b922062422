package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration (server.*).
type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ReadOnly       bool     `mapstructure:"read_only"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateBurst      int      `mapstructure:"rate_burst"`
	TrustProxy     bool     `mapstructure:"trust_proxy"`
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Port)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must not be negative")
	}
	return nil
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/tunnelwatch.db")

	// Plugin defaults
	v.SetDefault("plugins.tunnel.backend", "none")
	v.SetDefault("plugins.tunnel.command", "")
	v.SetDefault("plugins.tunnel.bridge_url", "")
	v.SetDefault("plugins.tunnel.timeout", "60s")
	v.SetDefault("plugins.tunnel.journal_retention", "720h")
	v.SetDefault("plugins.monitor.refresh_interval", "10s")
	v.SetDefault("plugins.monitor.probe_timeout", "10s")
	v.SetDefault("plugins.monitor.notice_ttl", "2s")
	v.SetDefault("plugins.monitor.max_body_bytes", 1<<20)
	v.SetDefault("plugins.monitor.icmp_privileged", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tunnelwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tunnelwatch")
	}

	// TW_SERVER_PORT=9090, TW_PLUGINS_TUNNEL_BACKEND=command
	v.SetEnvPrefix("TW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Running on defaults.
	}

	return v, nil
}
