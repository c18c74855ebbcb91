// Package config loads and validates the optipath YAML configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TargetConfig describes one candidate backend endpoint. The order of the
// targets list is significant: it is the tie-break order for selection.
type TargetConfig struct {
	Name string `yaml:"name"` // Informational label used in logs and the admin API
	Addr string `yaml:"addr"` // "host:port"; host may be a name, IPv4 or bracketed IPv6 literal
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `yaml:"output"` // "stdout", "stderr", "syslog" or a file path (default: "stderr")
	Format string `yaml:"format"` // "console" or "json" (default: "console")
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error" (default: "info")
}

// MetricsConfig holds the optional Prometheus metrics listener configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. ":9090"
	Path    string `yaml:"path"` // default "/metrics"
}

// AdminConfig holds the optional HTTP status API configuration.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`    // e.g. "127.0.0.1:8081"
	APIKey  string `yaml:"api_key"` // optional bearer token; empty disables auth
}

// Config holds all configuration for the forwarder.
type Config struct {
	BindAddr       string         `yaml:"bind_addr"`       // Listen address, "host:port"
	UpdateInterval int            `yaml:"update_interval"` // Probing period in seconds (default: 60)
	ProxyProtocol  string         `yaml:"proxy_protocol"`  // "" (disabled) or "v2"
	ConnectTimeout string         `yaml:"connect_timeout"` // Outbound dial timeout (default: "10s")
	Targets        []TargetConfig `yaml:"targets"`
	Logging        LoggingConfig  `yaml:"logging"`
	Metrics        MetricsConfig  `yaml:"metrics"`
	Admin          AdminConfig    `yaml:"admin"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		UpdateInterval: 60,
		ProxyProtocol:  "",
		ConnectTimeout: "10s",
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// LoadConfigFromFile reads the YAML configuration file at path into cfg.
// Unknown keys are rejected so that typos fail at startup instead of being
// silently ignored.
func LoadConfigFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}
	return nil
}

// Validate checks the configuration for errors that must abort startup.
func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("bind_addr must be set")
	}
	if err := validateHostPort(c.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr '%s': %w", c.BindAddr, err)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be a positive number of seconds, got %d", c.UpdateInterval)
	}
	if c.ProxyProtocol != "" && c.ProxyProtocol != "v2" {
		return fmt.Errorf("proxy_protocol must be empty or \"v2\", got '%s'", c.ProxyProtocol)
	}
	if _, err := c.GetConnectTimeout(); err != nil {
		return fmt.Errorf("invalid connect_timeout '%s': %w", c.ConnectTimeout, err)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]string, len(c.Targets))
	for i, t := range c.Targets {
		if t.Addr == "" {
			return fmt.Errorf("target %d ('%s'): addr must be set", i, t.Name)
		}
		if err := validateHostPort(t.Addr); err != nil {
			return fmt.Errorf("target %d ('%s'): invalid addr '%s': %w", i, t.Name, t.Addr, err)
		}
		if prev, ok := seen[t.Addr]; ok {
			return fmt.Errorf("target '%s' and '%s' share the same addr '%s'", prev, t.Name, t.Addr)
		}
		seen[t.Addr] = t.Name
	}
	if c.Metrics.Enabled {
		if err := validateHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("invalid metrics addr '%s': %w", c.Metrics.Addr, err)
		}
	}
	if c.Admin.Enabled {
		if err := validateHostPort(c.Admin.Addr); err != nil {
			return fmt.Errorf("invalid admin addr '%s': %w", c.Admin.Addr, err)
		}
	}
	return nil
}

// GetUpdateInterval returns the probing period as a duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// GetConnectTimeout parses the outbound dial timeout.
func (c *Config) GetConnectTimeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

// ProxyProtocolEnabled reports whether the PROXY v2 preamble should be sent
// on outbound connections.
func (c *Config) ProxyProtocolEnabled() bool {
	return c.ProxyProtocol == "v2"
}

// GetMetricsPath returns the metrics handler path with its default applied.
func (m *MetricsConfig) GetMetricsPath() string {
	if m.Path == "" {
		return "/metrics"
	}
	return m.Path
}

// TargetName returns the label to use for a target in logs and metrics.
// Unnamed targets fall back to their address.
func (t *TargetConfig) TargetName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Addr
}

// validateHostPort checks that addr is a "host:port" string with a numeric
// port in range. The host part may be empty (wildcard bind) or a hostname,
// so no resolution is attempted here.
func validateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("missing port")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port '%s' is not numeric", port)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	// Reject garbage like "a b:1" early; hostnames are resolved at probe time.
	if host != "" && net.ParseIP(host) == nil {
		for _, r := range host {
			if r == ' ' {
				return fmt.Errorf("host '%s' contains whitespace", host)
			}
		}
	}
	return nil
}
