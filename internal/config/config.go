// Package config loads the projd service settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Dir is the settings directory under a workspace root.
const Dir = ".projd"

// EnvPrefix prefixes environment overrides, e.g. PROJD_WATCH_BACKEND.
const EnvPrefix = "PROJD"

// Config represents the complete projd configuration
type Config struct {
	UseCaseSensitiveFileNames                 bool   `json:"useCaseSensitiveFileNames" mapstructure:"useCaseSensitiveFileNames" toml:"useCaseSensitiveFileNames"`
	LazyConfiguredProjectsFromExternalProject bool   `json:"lazyConfiguredProjectsFromExternalProject" mapstructure:"lazyConfiguredProjectsFromExternalProject" toml:"lazyConfiguredProjectsFromExternalProject"`
	LibFile                                   string `json:"libFile" mapstructure:"libFile" toml:"libFile"`

	Watch   WatchConfig   `json:"watch" mapstructure:"watch" toml:"watch"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" toml:"metrics"`
}

// WatchConfig selects how file system changes reach the service
type WatchConfig struct {
	Backend        string `json:"backend" mapstructure:"backend" toml:"backend"`
	PollIntervalMs int    `json:"pollIntervalMs" mapstructure:"pollIntervalMs" toml:"pollIntervalMs"`
	DebounceMs     int    `json:"debounceMs" mapstructure:"debounceMs" toml:"debounceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level"`
}

// MetricsConfig contains the Prometheus listener address; empty disables it.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr" toml:"addr"`
}

// Watch backends
const (
	BackendFSNotify = "fsnotify"
	BackendPoll     = "poll"
	BackendNone     = "none"
)

// HostCaseSensitive reports the file name case policy of the host OS.
func HostCaseSensitive() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		UseCaseSensitiveFileNames: HostCaseSensitive(),
		Watch: WatchConfig{
			Backend:        BackendFSNotify,
			PollIntervalMs: 500,
			DebounceMs:     50,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("useCaseSensitiveFileNames", d.UseCaseSensitiveFileNames)
	v.SetDefault("lazyConfiguredProjectsFromExternalProject", d.LazyConfiguredProjectsFromExternalProject)
	v.SetDefault("libFile", d.LibFile)
	v.SetDefault("watch.backend", d.Watch.Backend)
	v.SetDefault("watch.pollIntervalMs", d.Watch.PollIntervalMs)
	v.SetDefault("watch.debounceMs", d.Watch.DebounceMs)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// New returns a viper instance with projd defaults and environment
// overrides, reading <root>/.projd/config.{toml,json,yaml} when present.
// Callers bind CLI flags onto it before Load.
func New(root string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(root, Dir))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file, if any, and unmarshals the effective
// configuration.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads the configuration of the workspace at root.
func LoadConfig(root string) (*Config, error) {
	return Load(New(root))
}

// Path returns the settings file written by Save.
func Path(root string) string {
	return filepath.Join(root, Dir, "config.toml")
}

// Save writes the configuration to .projd/config.toml
func (c *Config) Save(root string) error {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		return err
	}
	f, err := os.Create(Path(root))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Watch.Backend {
	case BackendFSNotify, BackendPoll, BackendNone:
	default:
		return &ConfigError{Field: "watch.backend", Message: fmt.Sprintf("unknown backend %q", c.Watch.Backend)}
	}
	if c.Watch.PollIntervalMs <= 0 {
		return &ConfigError{Field: "watch.pollIntervalMs", Message: "must be positive"}
	}
	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Field: "watch.debounceMs", Message: "must not be negative"}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
