// Package config holds the settings every gantry component is constructed
// with. A Config is built once at startup and passed down explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gantrydev/gantry/internal/paths"
	"github.com/spf13/viper"
)

// PortRange is an inclusive range of host ports handed out to projects.
type PortRange struct {
	Min int
	Max int
}

// Contains reports whether port lies inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Min && port <= r.Max
}

// Timeouts bounds every blocking call the process manager makes.
type Timeouts struct {
	Bind             time.Duration // port probe
	Status           time.Duration // compose ps
	Up               time.Duration // compose up -d
	Down             time.Duration // compose down
	HealthRequest    time.Duration // one health-check GET
	HealthRetryDelay time.Duration
	Settle           time.Duration // after compose up, before capturing PIDs
	StopSettle       time.Duration // after compose down, before re-checking PIDs
	Grace            time.Duration // between SIGTERM and SIGKILL
	RestartPause     time.Duration
}

type Config struct {
	Home           string
	RegistryPath   string
	ProjectsDir    string
	CaddyfilePath  string
	SocketPath     string
	PIDFile        string
	ComposeBinary  string
	TLD            string
	LogLevel       string
	PortRange      PortRange
	Timeouts       Timeouts
	HealthAttempts int
	WatchInterval  time.Duration
}

// Default returns the built-in configuration rooted at home.
func Default(home string) *Config {
	return &Config{
		Home:          home,
		RegistryPath:  paths.RegistryPath(home),
		ProjectsDir:   paths.ProjectsDir(home),
		CaddyfilePath: paths.CaddyfilePath(home),
		SocketPath:    paths.DefaultSocketPath(),
		PIDFile:       paths.DefaultPIDPath(),
		ComposeBinary: "docker",
		TLD:           "test",
		LogLevel:      "info",
		PortRange:     PortRange{Min: 5000, Max: 5999},
		Timeouts: Timeouts{
			Bind:             100 * time.Millisecond,
			Status:           10 * time.Second,
			Up:               120 * time.Second,
			Down:             30 * time.Second,
			HealthRequest:    5 * time.Second,
			HealthRetryDelay: time.Second,
			Settle:           2 * time.Second,
			StopSettle:       time.Second,
			Grace:            2 * time.Second,
			RestartPause:     time.Second,
		},
		HealthAttempts: 3,
		WatchInterval:  60 * time.Second,
	}
}

// Load builds a Config from viper. Keys that are not set fall back to
// Default. The config file (<home>/config.yaml unless "config" is set) is
// optional.
func Load(v *viper.Viper) (*Config, error) {
	home := v.GetString("home")
	if home == "" {
		home = paths.DefaultHome()
	}
	cfg := Default(home)
	setDefaults(v, cfg)

	cfgFile := v.GetString("config")
	if cfgFile == "" {
		cfgFile = paths.ConfigPath(home)
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	cfg.RegistryPath = v.GetString("registry_path")
	cfg.ProjectsDir = v.GetString("projects_dir")
	cfg.CaddyfilePath = v.GetString("caddyfile_path")
	cfg.SocketPath = v.GetString("socket_path")
	cfg.PIDFile = v.GetString("pid_file")
	cfg.ComposeBinary = v.GetString("compose_binary")
	cfg.TLD = v.GetString("tld")
	cfg.LogLevel = v.GetString("log_level")
	cfg.PortRange.Min = v.GetInt("ports.min")
	cfg.PortRange.Max = v.GetInt("ports.max")
	cfg.HealthAttempts = v.GetInt("health.attempts")
	cfg.WatchInterval = v.GetDuration("watch_interval")

	t := &cfg.Timeouts
	t.Bind = v.GetDuration("timeouts.bind")
	t.Status = v.GetDuration("timeouts.status")
	t.Up = v.GetDuration("timeouts.up")
	t.Down = v.GetDuration("timeouts.down")
	t.HealthRequest = v.GetDuration("timeouts.health_request")
	t.HealthRetryDelay = v.GetDuration("timeouts.health_retry_delay")
	t.Settle = v.GetDuration("timeouts.settle")
	t.StopSettle = v.GetDuration("timeouts.stop_settle")
	t.Grace = v.GetDuration("timeouts.grace")
	t.RestartPause = v.GetDuration("timeouts.restart_pause")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("registry_path", cfg.RegistryPath)
	v.SetDefault("projects_dir", cfg.ProjectsDir)
	v.SetDefault("caddyfile_path", cfg.CaddyfilePath)
	v.SetDefault("socket_path", cfg.SocketPath)
	v.SetDefault("pid_file", cfg.PIDFile)
	v.SetDefault("compose_binary", cfg.ComposeBinary)
	v.SetDefault("tld", cfg.TLD)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("ports.min", cfg.PortRange.Min)
	v.SetDefault("ports.max", cfg.PortRange.Max)
	v.SetDefault("health.attempts", cfg.HealthAttempts)
	v.SetDefault("watch_interval", cfg.WatchInterval)

	t := cfg.Timeouts
	v.SetDefault("timeouts.bind", t.Bind)
	v.SetDefault("timeouts.status", t.Status)
	v.SetDefault("timeouts.up", t.Up)
	v.SetDefault("timeouts.down", t.Down)
	v.SetDefault("timeouts.health_request", t.HealthRequest)
	v.SetDefault("timeouts.health_retry_delay", t.HealthRetryDelay)
	v.SetDefault("timeouts.settle", t.Settle)
	v.SetDefault("timeouts.stop_settle", t.StopSettle)
	v.SetDefault("timeouts.grace", t.Grace)
	v.SetDefault("timeouts.restart_pause", t.RestartPause)
}

// Validate rejects configurations the components cannot work with.
func (c *Config) Validate() error {
	if c.PortRange.Min < 1 || c.PortRange.Max > 65535 || c.PortRange.Min > c.PortRange.Max {
		return fmt.Errorf("invalid port range %d-%d", c.PortRange.Min, c.PortRange.Max)
	}
	if c.HealthAttempts < 1 {
		return fmt.Errorf("health.attempts must be at least 1, got %d", c.HealthAttempts)
	}
	if c.ComposeBinary == "" {
		return errors.New("compose_binary must not be empty")
	}
	if c.RegistryPath == "" || c.ProjectsDir == "" {
		return errors.New("registry_path and projects_dir are required")
	}
	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"bind":           t.Bind,
		"status":         t.Status,
		"up":             t.Up,
		"down":           t.Down,
		"health_request": t.HealthRequest,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}
	if c.WatchInterval <= 0 {
		return errors.New("watch_interval must be positive")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
