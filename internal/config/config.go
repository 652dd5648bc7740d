package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"homeport/internal/forward"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ProbeWSL       = "wsl"
	ProbeInterface = "interface"
)

type Config struct {
	Distro         string `mapstructure:"DISTRO"`
	WSLCommand     string `mapstructure:"WSL_COMMAND"`
	ComposeCommand string `mapstructure:"COMPOSE_COMMAND"`
	ComposeDir     string `mapstructure:"COMPOSE_DIR"`
	SkipComposeUp  bool   `mapstructure:"SKIP_COMPOSE_UP"`
	Ports          []int  `mapstructure:"PORTS"`
	WaitSeconds    int    `mapstructure:"WAIT_SECONDS"`
	MinServices    int    `mapstructure:"MIN_SERVICES"`
	AddressProbe   string `mapstructure:"ADDRESS_PROBE"`
	ProbeInterface string `mapstructure:"PROBE_INTERFACE"`

	ForwardBackend string `mapstructure:"FORWARD_BACKEND"`
	DryRun         bool   `mapstructure:"DRY_RUN"`
	ListenAddress  string `mapstructure:"LISTEN_ADDRESS"`
	RulePrefix     string `mapstructure:"RULE_PREFIX"`

	DatabasePath string `mapstructure:"DB_PATH"`
	HTTPAddr     string `mapstructure:"HTTP_ADDR"`

	TibberToken    string        `mapstructure:"TIBBER_TOKEN"`
	TibberAPI      string        `mapstructure:"TIBBER_API"`
	TibberHomeID   string        `mapstructure:"TIBBER_HOME_ID"`
	TibberDeviceID string        `mapstructure:"TIBBER_DEVICE_ID"`
	MeterInterval  time.Duration `mapstructure:"METER_INTERVAL"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"distro":          "DISTRO",
	"wsl-command":     "WSL_COMMAND",
	"compose-command": "COMPOSE_COMMAND",
	"compose-dir":     "COMPOSE_DIR",
	"skip-compose-up": "SKIP_COMPOSE_UP",
	"ports":           "PORTS",
	"wait-seconds":    "WAIT_SECONDS",
	"min-services":    "MIN_SERVICES",
	"address-probe":   "ADDRESS_PROBE",
	"probe-interface": "PROBE_INTERFACE",
	"backend":         "FORWARD_BACKEND",
	"dry-run":         "DRY_RUN",
	"listen-address":  "LISTEN_ADDRESS",
	"rule-prefix":     "RULE_PREFIX",
	"db":              "DB_PATH",
	"http-addr":       "HTTP_ADDR",
	"tibber-api":      "TIBBER_API",
	"home":            "TIBBER_HOME_ID",
	"device":          "TIBBER_DEVICE_ID",
	"interval":        "METER_INTERVAL",
	"log-level":       "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DISTRO", "Ubuntu")
	v.SetDefault("WSL_COMMAND", "wsl")
	v.SetDefault("COMPOSE_COMMAND", "docker compose")
	v.SetDefault("COMPOSE_DIR", "/opt/homeassistant")
	v.SetDefault("SKIP_COMPOSE_UP", false)
	v.SetDefault("PORTS", []int{8123, 3000, 8086})
	v.SetDefault("WAIT_SECONDS", 180)
	v.SetDefault("MIN_SERVICES", 3)
	v.SetDefault("ADDRESS_PROBE", ProbeWSL)
	v.SetDefault("PROBE_INTERFACE", "eth0")
	v.SetDefault("FORWARD_BACKEND", forward.BackendNetsh)
	v.SetDefault("DRY_RUN", false)
	v.SetDefault("LISTEN_ADDRESS", forward.DefaultListenAddress)
	v.SetDefault("RULE_PREFIX", forward.DefaultRulePrefix)
	v.SetDefault("DB_PATH", "homeport.db")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TIBBER_TOKEN", "")
	v.SetDefault("TIBBER_API", "https://data-api.tibber.com/v1")
	v.SetDefault("TIBBER_HOME_ID", "")
	v.SetDefault("TIBBER_DEVICE_ID", "")
	v.SetDefault("METER_INTERVAL", 10*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
}

// LoadConfig reads defaults, then configFile (or ./.env when empty), then
// HOMEPORT_* environment variables, then any flags set in flags.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOMEPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", configFile, err)
		}
	} else {
		v.SetConfigFile(".env")
		// Ignore err if .env doesn't exist
		_ = v.ReadInConfig()
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings used by the forward and sync commands.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return fmt.Errorf("no ports configured")
	}
	seen := make(map[int]bool, len(c.Ports))
	for _, p := range c.Ports {
		if err := forward.ValidatePort(p); err != nil {
			return err
		}
		if seen[p] {
			return fmt.Errorf("port %d listed twice", p)
		}
		seen[p] = true
	}
	if c.WaitSeconds < 1 {
		return fmt.Errorf("wait seconds must be positive, got %d", c.WaitSeconds)
	}
	if c.MinServices < 1 {
		return fmt.Errorf("min services must be at least 1, got %d", c.MinServices)
	}
	if !slices.Contains(forward.Backends, c.ForwardBackend) {
		return fmt.Errorf("unknown forward backend %q (want one of %v)", c.ForwardBackend, forward.Backends)
	}
	switch c.AddressProbe {
	case ProbeWSL:
	case ProbeInterface:
		if c.ProbeInterface == "" {
			return fmt.Errorf("address probe %q needs an interface name", ProbeInterface)
		}
	default:
		return fmt.Errorf("unknown address probe %q", c.AddressProbe)
	}
	return nil
}

// Wait is the per-phase readiness timeout.
func (c *Config) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// Backend is the forward backend to use, honouring DryRun.
func (c *Config) Backend() string {
	if c.DryRun {
		return forward.BackendMemory
	}
	return c.ForwardBackend
}
