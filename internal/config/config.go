// ABOUTME: Configuration loading and parsing for the sragent device agent
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete sragent configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Device    DeviceConfig    `yaml:"device" toml:"device"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
	Reporter  ReporterConfig  `yaml:"reporter" toml:"reporter"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the SmartREST endpoint
type ServerConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DeviceConfig identifies this device and the template it registers
type DeviceConfig struct {
	ID string `yaml:"id" toml:"id"`
	// Template is the path of the SmartREST template collection file
	Template string `yaml:"template" toml:"template"`
}

// BootstrapConfig holds the shared bootstrap account used before the
// device has its own credentials
type BootstrapConfig struct {
	Username string        `yaml:"username" toml:"username"`
	Password string        `yaml:"password" toml:"password"`
	Interval time.Duration `yaml:"-" toml:"-"`
	Attempts int           `yaml:"attempts" toml:"attempts"`

	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// ReporterConfig tunes batching, retries and the replay buffer.
// Zero values fall back to the reporter's defaults.
type ReporterConfig struct {
	BatchSize      int           `yaml:"batch_size" toml:"batch_size"`
	Wait           time.Duration `yaml:"-" toml:"-"`
	Retries        int           `yaml:"retries" toml:"retries"`
	Backoff        time.Duration `yaml:"-" toml:"-"`
	BufferCapacity int           `yaml:"buffer_capacity" toml:"buffer_capacity"`

	WaitRaw    string `yaml:"wait" toml:"wait"`
	BackoffRaw string `yaml:"backoff" toml:"backoff"`
}

// AgentConfig holds queue sizes and the optional heartbeat
type AgentConfig struct {
	IngressCapacity   int           `yaml:"ingress_capacity" toml:"ingress_capacity"`
	EgressCapacity    int           `yaml:"egress_capacity" toml:"egress_capacity"`
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	// HeartbeatCode is the template message id sent on every heartbeat.
	// Empty disables the heartbeat.
	HeartbeatCode string `yaml:"heartbeat_code" toml:"heartbeat_code"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// DatabaseConfig holds credential store configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

const (
	defaultServerTimeout     = 20 * time.Second
	defaultHeartbeatInterval = time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Timeout == 0 {
		c.Server.Timeout = defaultServerTimeout
	}
	if c.Agent.HeartbeatCode != "" && c.Agent.HeartbeatInterval == 0 {
		c.Agent.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataPath(), "sragent.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}

	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if c.Device.Template == "" {
		return fmt.Errorf("device.template is required")
	}

	if c.Bootstrap.Attempts < 0 {
		return fmt.Errorf("bootstrap.attempts must not be negative")
	}
	if c.Reporter.BatchSize < 0 {
		return fmt.Errorf("reporter.batch_size must not be negative")
	}
	if c.Reporter.BufferCapacity < 0 {
		return fmt.Errorf("reporter.buffer_capacity must not be negative")
	}
	if c.Agent.IngressCapacity < 0 || c.Agent.EgressCapacity < 0 {
		return fmt.Errorf("agent queue capacities must not be negative")
	}
	if c.Agent.HeartbeatInterval < 0 {
		return fmt.Errorf("agent.heartbeat_interval must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.timeout", cfg.Server.TimeoutRaw, &cfg.Server.Timeout},
		{"bootstrap.interval", cfg.Bootstrap.IntervalRaw, &cfg.Bootstrap.Interval},
		{"reporter.wait", cfg.Reporter.WaitRaw, &cfg.Reporter.Wait},
		{"reporter.backoff", cfg.Reporter.BackoffRaw, &cfg.Reporter.Backoff},
		{"agent.heartbeat_interval", cfg.Agent.HeartbeatIntervalRaw, &cfg.Agent.HeartbeatInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Path returns the path to the agent config file.
// Priority: SRAGENT_CONFIG env var > XDG_CONFIG_HOME/sragent/agent.yaml > ~/.config/sragent/agent.yaml
func Path() string {
	if envPath := os.Getenv("SRAGENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "agent.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sragent", "agent.yaml")
}

// DataPath returns the sragent data directory.
// Priority: XDG_DATA_HOME/sragent > ~/.local/share/sragent
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "sragent")
}
