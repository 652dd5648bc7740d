package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "Ubuntu", cfg.Distro)
	assert.Equal(t, "docker compose", cfg.ComposeCommand)
	assert.Equal(t, []int{8123, 3000, 8086}, cfg.Ports)
	assert.Equal(t, 180, cfg.WaitSeconds)
	assert.Equal(t, 3*time.Minute, cfg.Wait())
	assert.Equal(t, 3, cfg.MinServices)
	assert.Equal(t, "netsh", cfg.ForwardBackend)
	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.Equal(t, "WSL Port ", cfg.RulePrefix)
	assert.Equal(t, 10*time.Second, cfg.MeterInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("HOMEPORT_PORTS", "8123,1883")
	t.Setenv("HOMEPORT_WAIT_SECONDS", "30")
	t.Setenv("HOMEPORT_DISTRO", "Debian")
	t.Setenv("HOMEPORT_DRY_RUN", "true")
	t.Setenv("HOMEPORT_METER_INTERVAL", "1m")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, []int{8123, 1883}, cfg.Ports)
	assert.Equal(t, 30, cfg.WaitSeconds)
	assert.Equal(t, "Debian", cfg.Distro)
	assert.Equal(t, "memory", cfg.Backend())
	assert.Equal(t, time.Minute, cfg.MeterInterval)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HOMEPORT_MIN_SERVICES", "5")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.IntSlice("ports", []int{8123, 3000, 8086}, "")
	flags.Int("min-services", 3, "")
	flags.String("backend", "netsh", "")
	require.NoError(t, flags.Parse([]string{"--ports", "9000,9001", "--backend", "iptables"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, []int{9000, 9001}, cfg.Ports)
	assert.Equal(t, "iptables", cfg.ForwardBackend)
	assert.Equal(t, 5, cfg.MinServices, "unset flags must not shadow the environment")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homeport.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DISTRO: Fedora\nPORTS: [8123]\nCOMPOSE_DIR: /srv/ha\n"), 0o644))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Fedora", cfg.Distro)
	assert.Equal(t, []int{8123}, cfg.Ports)
	assert.Equal(t, "/srv/ha", cfg.ComposeDir)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("", nil)
		require.NoError(t, err)
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no ports", func(c *Config) { c.Ports = nil }},
		{"port out of range", func(c *Config) { c.Ports = []int{0} }},
		{"duplicate port", func(c *Config) { c.Ports = []int{8123, 8123} }},
		{"zero wait", func(c *Config) { c.WaitSeconds = 0 }},
		{"zero quorum", func(c *Config) { c.MinServices = 0 }},
		{"unknown backend", func(c *Config) { c.ForwardBackend = "pf" }},
		{"unknown probe", func(c *Config) { c.AddressProbe = "arp" }},
		{"interface probe without link", func(c *Config) { c.AddressProbe = ProbeInterface; c.ProbeInterface = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
