// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ordbridge/teleburnd/internal/guard"
)

// Environment overrides. Endpoints from the environment replace the
// configured list entirely; the kill-switch variable is read live by the
// guard, never cached here.
const (
	EnvRPCEndpoints = "TELEBURN_RPC_ENDPOINTS"
	EnvKillSwitch   = guard.DefaultKillSwitchEnv
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RPC        RPCConfig        `yaml:"rpc"`
	KillSwitch KillSwitchConfig `yaml:"kill_switch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`

	// TrustProxy enables client identity from forwarding headers. Only
	// safe behind a proxy that strips inbound copies of those headers.
	TrustProxy bool `yaml:"trust_proxy"`

	// Rate limiting: RateLimitRequests per RateLimitWindowSecs for each
	// client identity, with a global requests-per-second backstop.
	RateLimitRequests   int     `yaml:"rate_limit_requests"`
	RateLimitWindowSecs int     `yaml:"rate_limit_window_secs"`
	GlobalRatePerSec    float64 `yaml:"global_rate_per_sec"`

	ReadTimeoutSecs  int `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int `yaml:"write_timeout_secs"`
	IdleTimeoutSecs  int `yaml:"idle_timeout_secs"`
}

// RPCConfig contains upstream endpoint settings.
type RPCConfig struct {
	// Endpoints are tried in order; the first healthy one wins.
	Endpoints []string `yaml:"endpoints"`

	ProbeIntervalSecs int `yaml:"probe_interval_secs"`
}

// KillSwitchConfig points the guard at its activation sources.
type KillSwitchConfig struct {
	// EnvVar is checked on every request; any value except empty, "0",
	// "false" or "off" activates the switch.
	EnvVar string `yaml:"env_var"`
	// StateFile, when set, is a second activation source watched for
	// changes.
	StateFile string `yaml:"state_file"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:          "127.0.0.1:8480",
			CORSOrigins:         []string{"*"},
			RateLimitRequests:   100,
			RateLimitWindowSecs: 60,
			GlobalRatePerSec:    50,
			ReadTimeoutSecs:     30,
			WriteTimeoutSecs:    30,
			IdleTimeoutSecs:     120,
		},
		RPC: RPCConfig{
			Endpoints:         []string{"https://api.mainnet-beta.solana.com"},
			ProbeIntervalSecs: 30,
		},
		KillSwitch: KillSwitchConfig{
			EnvVar: EnvKillSwitch,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv applies environment overrides.
func (c *Config) applyEnv() {
	if raw := os.Getenv(EnvRPCEndpoints); raw != "" {
		var endpoints []string
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
		if len(endpoints) > 0 {
			c.RPC.Endpoints = endpoints
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.RateLimitRequests < 1 {
		return fmt.Errorf("rate_limit_requests must be at least 1")
	}
	if c.Server.RateLimitWindowSecs < 1 {
		return fmt.Errorf("rate_limit_window_secs must be at least 1")
	}
	if c.Server.GlobalRatePerSec <= 0 {
		return fmt.Errorf("global_rate_per_sec must be positive")
	}

	if len(c.RPC.Endpoints) == 0 {
		return fmt.Errorf("at least one rpc endpoint is required")
	}
	for _, e := range c.RPC.Endpoints {
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			return fmt.Errorf("rpc endpoint %q must be an http(s) URL", e)
		}
	}
	if c.RPC.ProbeIntervalSecs < 1 {
		return fmt.Errorf("probe_interval_secs must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the per-user config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".teleburnd", "config.yaml")
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
