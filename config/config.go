// Package config handles vlquery runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override the configuration file.
const (
	EnvDSN      = "VLQUERY_DSN"
	EnvVerbose  = "VLQUERY_VERBOSE"
	EnvPoolSize = "VLQUERY_POOL_SIZE"
	EnvConfig   = "VLQUERY_CONFIG"
)

// Defaults applied by Load for unset values.
const (
	DefaultPoolSize   = 4
	DefaultRetryDelay = 2 * time.Second
)

// Config represents the vlquery configuration.
type Config struct {
	// Schema is the path of the entity metadata file (YAML).
	Schema string `toml:"schema"`

	// Verbose logs every statement with its parameters inlined.
	Verbose bool `toml:"verbose"`

	// Database holds the connection settings.
	Database DatabaseConfig `toml:"database"`
}

// DatabaseConfig holds the connection settings.
type DatabaseConfig struct {
	// DSN is a lib/pq connection string or URL.
	DSN string `toml:"dsn"`

	// PoolSize is the number of physical connections.
	PoolSize int `toml:"pool_size"`

	// RetryDelay is the delay between reconnect attempts, e.g. "2s".
	RetryDelay Duration `toml:"retry_delay"`

	// StatementTimeout sets statement_timeout on every statement. Zero
	// leaves the server default.
	StatementTimeout Duration `toml:"statement_timeout"`

	// SlowThreshold logs statements slower than this. Zero disables it.
	SlowThreshold Duration `toml:"slow_threshold"`

	// BatchWait batches lazy relation loads arriving within this window
	// into one statement. Zero loads each relation separately.
	BatchWait Duration `toml:"batch_wait"`
}

// Duration is a time.Duration decoded from a TOML string such as "1.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads the configuration from path, applies environment overrides and
// fills defaults. An empty path falls back to $VLQUERY_CONFIG; if that is
// empty too only the environment and defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := &Config{}
	if path != "" {
		var err error
		if cfg, err = LoadFrom(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

// LoadFrom loads the configuration from a specific path without overrides
// or defaults.
func LoadFrom(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &config, nil
}

// Parse decodes a TOML document.
func Parse(data string) (*Config, error) {
	var config Config
	if _, err := toml.Decode(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// ApplyEnv overrides settings from environment variables read through
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDSN); v != "" {
		c.Database.DSN = v
	}
	if v := getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvVerbose, v, err)
		}
		c.Verbose = b
	}
	if v := getenv(EnvPoolSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive integer", EnvPoolSize, v)
		}
		c.Database.PoolSize = n
	}
	return nil
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Database.PoolSize <= 0 {
		c.Database.PoolSize = DefaultPoolSize
	}
	if c.Database.RetryDelay.Duration <= 0 {
		c.Database.RetryDelay.Duration = DefaultRetryDelay
	}
}

// Validate reports missing settings required to open a connection.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("no database dsn configured (set [database] dsn or %s)", EnvDSN)
	}
	if c.Schema == "" {
		return fmt.Errorf("no schema file configured")
	}
	return nil
}
