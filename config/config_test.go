package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeTempConfig(t, `
bind_addr: "0.0.0.0:8388"
update_interval: 30
proxy_protocol: "v2"
targets:
  - name: tokyo
    addr: "198.51.100.10:8388"
  - name: osaka
    addr: "198.51.100.11:8388"
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: ":9090"
`)

	cfg := NewDefaultConfig()
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8388", cfg.BindAddr)
	assert.Equal(t, 30*time.Second, cfg.GetUpdateInterval())
	assert.True(t, cfg.ProxyProtocolEnabled())
	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "tokyo", cfg.Targets[0].Name)
	assert.Equal(t, "198.51.100.11:8388", cfg.Targets[1].Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.GetMetricsPath())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
bind_addr: ":1080"
targets:
  - name: only
    addr: "10.0.0.1:80"
`)

	cfg := NewDefaultConfig()
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, cfg.GetUpdateInterval())
	assert.False(t, cfg.ProxyProtocolEnabled())
	timeout, err := cfg.GetConnectTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := writeTempConfig(t, `
bind_addr: ":1080"
updat_interval: 30
targets:
  - addr: "10.0.0.1:80"
`)

	cfg := NewDefaultConfig()
	err := LoadConfigFromFile(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "updat_interval")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := NewDefaultConfig()
		cfg.BindAddr = "127.0.0.1:1080"
		cfg.Targets = []TargetConfig{{Name: "a", Addr: "10.0.0.1:80"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid baseline",
			mutate: func(c *Config) {},
		},
		{
			name:   "IPv6 bracketed literals",
			mutate: func(c *Config) { c.BindAddr = "[::1]:1080"; c.Targets[0].Addr = "[2001:db8::1]:80" },
		},
		{
			name:    "missing bind addr",
			mutate:  func(c *Config) { c.BindAddr = "" },
			wantErr: "bind_addr",
		},
		{
			name:    "bind addr without port",
			mutate:  func(c *Config) { c.BindAddr = "127.0.0.1" },
			wantErr: "bind_addr",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.UpdateInterval = 0 },
			wantErr: "update_interval",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.UpdateInterval = -5 },
			wantErr: "update_interval",
		},
		{
			name:    "unsupported proxy protocol version",
			mutate:  func(c *Config) { c.ProxyProtocol = "v1" },
			wantErr: "proxy_protocol",
		},
		{
			name:    "empty target list",
			mutate:  func(c *Config) { c.Targets = nil },
			wantErr: "at least one target",
		},
		{
			name:    "target without addr",
			mutate:  func(c *Config) { c.Targets[0].Addr = "" },
			wantErr: "addr must be set",
		},
		{
			name:    "target with malformed addr",
			mutate:  func(c *Config) { c.Targets[0].Addr = "10.0.0.1" },
			wantErr: "invalid addr",
		},
		{
			name:    "target with out-of-range port",
			mutate:  func(c *Config) { c.Targets[0].Addr = "10.0.0.1:70000" },
			wantErr: "out of range",
		},
		{
			name: "duplicate target addr",
			mutate: func(c *Config) {
				c.Targets = append(c.Targets, TargetConfig{Name: "b", Addr: "10.0.0.1:80"})
			},
			wantErr: "same addr",
		},
		{
			name:    "bad connect timeout",
			mutate:  func(c *Config) { c.ConnectTimeout = "soon" },
			wantErr: "connect_timeout",
		},
		{
			name:    "metrics enabled without addr",
			mutate:  func(c *Config) { c.Metrics.Enabled = true },
			wantErr: "metrics addr",
		},
		{
			name:    "admin enabled without addr",
			mutate:  func(c *Config) { c.Admin.Enabled = true },
			wantErr: "admin addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTargetName(t *testing.T) {
	named := TargetConfig{Name: "tokyo", Addr: "10.0.0.1:80"}
	assert.Equal(t, "tokyo", named.TargetName())

	unnamed := TargetConfig{Addr: "10.0.0.1:80"}
	assert.Equal(t, "10.0.0.1:80", unnamed.TargetName())
}
