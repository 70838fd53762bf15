package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	DockerHost       string      `mapstructure:"docker_host"`
	TimeoutSec       int         `mapstructure:"timeout_sec"`
	MemoryMB         int         `mapstructure:"memory_mb"`
	StopGraceSec     int         `mapstructure:"stop_grace_sec"`
	CreateTimeoutSec int         `mapstructure:"create_timeout_sec"`
	DisplayLimit     int         `mapstructure:"display_limit"`
	MaxConcurrent    int         `mapstructure:"max_concurrent"`
	Pool             PoolConfig  `mapstructure:"pool"`
	Sweep            SweepConfig `mapstructure:"sweep"`
}

// PoolConfig holds container pool configuration
type PoolConfig struct {
	MaxIdlePerImage int      `mapstructure:"max_idle_per_image"`
	Prewarm         []string `mapstructure:"prewarm"`
}

// SweepConfig holds orphan sweep configuration
type SweepConfig struct {
	OnStartup    bool `mapstructure:"on_startup"`
	IntervalSec  int  `mapstructure:"interval_sec"`
	StopGraceSec int  `mapstructure:"stop_grace_sec"`
}

// CatalogConfig points at the language catalog file
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode   string   `mapstructure:"mode"`
	Level  string   `mapstructure:"level"`
	Output []string `mapstructure:"output"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// New loads the configuration from ./config.yaml or ./config/config.yaml
func New() (*Config, error) {
	return Load("")
}

// Load loads and validates the application configuration. An empty path
// searches the default locations; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CODEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.docker_host", "")
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.memory_mb", 1024)
	v.SetDefault("sandbox.stop_grace_sec", 30)
	v.SetDefault("sandbox.create_timeout_sec", 60)
	v.SetDefault("sandbox.display_limit", 1000)
	v.SetDefault("sandbox.max_concurrent", 0)
	v.SetDefault("sandbox.pool.max_idle_per_image", 1)
	v.SetDefault("sandbox.pool.prewarm", []string{})
	v.SetDefault("sandbox.sweep.on_startup", true)
	v.SetDefault("sandbox.sweep.interval_sec", 0)
	v.SetDefault("sandbox.sweep.stop_grace_sec", 5)

	v.SetDefault("catalog.path", "languages.yaml")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", []string{"stderr"})

	v.SetDefault("metrics.listen", "")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.StopGraceSec < 0 {
		return fmt.Errorf("sandbox.stop_grace_sec must not be negative, got: %d", c.Sandbox.StopGraceSec)
	}

	if c.Sandbox.CreateTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.create_timeout_sec must be positive, got: %d", c.Sandbox.CreateTimeoutSec)
	}

	if c.Sandbox.DisplayLimit <= 0 {
		return fmt.Errorf("sandbox.display_limit must be positive, got: %d", c.Sandbox.DisplayLimit)
	}

	if c.Sandbox.MaxConcurrent < 0 {
		return fmt.Errorf("sandbox.max_concurrent must not be negative, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Sandbox.Pool.MaxIdlePerImage < 0 {
		return fmt.Errorf("sandbox.pool.max_idle_per_image must not be negative, got: %d", c.Sandbox.Pool.MaxIdlePerImage)
	}

	if c.Sandbox.Sweep.IntervalSec < 0 {
		return fmt.Errorf("sandbox.sweep.interval_sec must not be negative, got: %d", c.Sandbox.Sweep.IntervalSec)
	}

	if c.Sandbox.Sweep.StopGraceSec < 0 {
		return fmt.Errorf("sandbox.sweep.stop_grace_sec must not be negative, got: %d", c.Sandbox.Sweep.StopGraceSec)
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	return nil
}

// GetTimeout returns the default execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetStopGrace returns the container stop grace period
func (c *Config) GetStopGrace() time.Duration {
	return time.Duration(c.Sandbox.StopGraceSec) * time.Second
}

// GetCreateTimeout bounds a single container creation
func (c *Config) GetCreateTimeout() time.Duration {
	return time.Duration(c.Sandbox.CreateTimeoutSec) * time.Second
}

// GetSweepInterval returns the scheduled sweep interval, zero when disabled
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Sandbox.Sweep.IntervalSec) * time.Second
}

// GetSweepStopGrace returns the grace period given to orphans before removal
func (c *Config) GetSweepStopGrace() time.Duration {
	return time.Duration(c.Sandbox.Sweep.StopGraceSec) * time.Second
}

// GetMemoryBytes returns the container memory ceiling in bytes
func (c *Config) GetMemoryBytes() int64 {
	return int64(c.Sandbox.MemoryMB) * 1024 * 1024
}
