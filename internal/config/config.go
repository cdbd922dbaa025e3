// Package config loads and validates the orchestrator's JSON configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/irisorch/iris/internal/ierrors"
)

// Settings holds the top-level tunables for the orchestrator runtime.
type Settings struct {
	IdleTimeout         int    `mapstructure:"idleTimeout"`
	MaxProcesses        int    `mapstructure:"maxProcesses"`
	HealthCheckInterval int    `mapstructure:"healthCheckInterval"`
	SessionInitTimeout  int    `mapstructure:"sessionInitTimeout"`
	HTTPPort            int    `mapstructure:"httpPort"`
	DefaultTransport    string `mapstructure:"defaultTransport"`
}

// Dashboard holds the optional dashboard sub-config (consumed by an out-of-scope collaborator).
type Dashboard struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
}

// Team is one configured agent team.
type Team struct {
	Name               string   `mapstructure:"-"`
	Path               string   `mapstructure:"path"`
	Description        string   `mapstructure:"description"`
	IdleTimeout        int      `mapstructure:"idleTimeout"`
	SessionInitTimeout int      `mapstructure:"sessionInitTimeout"`
	SkipPermissions    bool     `mapstructure:"skipPermissions"`
	Remote             string   `mapstructure:"remote"`
	ClaudePath         string   `mapstructure:"claudePath"`
	AllowedTools       []string `mapstructure:"allowedTools"`
	DisallowedTools    []string `mapstructure:"disallowedTools"`
	Color              string   `mapstructure:"color"`
}

// Config is the fully parsed and validated configuration file.
type Config struct {
	Settings  Settings         `mapstructure:"settings"`
	Dashboard Dashboard        `mapstructure:"dashboard"`
	Teams     map[string]*Team `mapstructure:"teams"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// LoggingConfig mirrors the ambient logging section carried regardless of core scope.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings.idleTimeout", 1800_000)
	v.SetDefault("settings.maxProcesses", 10)
	v.SetDefault("settings.healthCheckInterval", 60_000)
	v.SetDefault("settings.sessionInitTimeout", 30_000)
	v.SetDefault("settings.httpPort", 1615)
	v.SetDefault("settings.defaultTransport", "stdio")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the configuration from IRIS_CONFIG_PATH, or the default
// <IRIS_HOME>/config.json location when unset.
func Load() (*Config, error) {
	path := os.Getenv("IRIS_CONFIG_PATH")
	if path == "" {
		path = filepath.Join(Home(), "config.json")
	}
	return LoadFile(path)
}

// Home returns IRIS_HOME, defaulting to "$HOME/.iris".
func Home() string {
	if h := os.Getenv("IRIS_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".iris")
}

// LoadFile reads and validates the configuration file at the given path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("settings.httpPort", "IRIS_HTTP_PORT")

	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, ierrors.Configuration(fmt.Sprintf("reading config file %q: %v", path, err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierrors.Configuration(fmt.Sprintf("parsing config file %q: %v", path, err))
	}

	baseDir := filepath.Dir(path)
	for name, team := range cfg.Teams {
		team.Name = name
		if !filepath.IsAbs(team.Path) {
			team.Path = filepath.Join(baseDir, team.Path)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Settings.MaxProcesses < 1 || cfg.Settings.MaxProcesses > 50 {
		return ierrors.Configuration("settings.maxProcesses must be between 1 and 50")
	}
	if cfg.Settings.HTTPPort < 1 || cfg.Settings.HTTPPort > 65535 {
		return ierrors.Configuration("settings.httpPort must be between 1 and 65535")
	}
	if cfg.Settings.DefaultTransport != "stdio" && cfg.Settings.DefaultTransport != "http" {
		return ierrors.Configuration("settings.defaultTransport must be \"stdio\" or \"http\"")
	}
	for name, team := range cfg.Teams {
		if team.Path == "" {
			return ierrors.Configuration(fmt.Sprintf("team %q is missing a path", name))
		}
		if team.Color != "" && !colorRe.MatchString(team.Color) {
			return ierrors.Configuration(fmt.Sprintf("team %q has an invalid color %q", name, team.Color))
		}
	}
	return nil
}
